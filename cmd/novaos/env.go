package main

import (
	"strings"

	"github.com/novaos/novaos/config"
)

const configKeyLogLevel = config.KeyLogLevel

// envBindings maps config keys to the environment variables that override
// them, in order of precedence.
var envBindings = map[string][]string{
	config.KeyStoreURL:     {"REDIS_URL"},
	config.KeyQueue:        {"REDIS_QUEUE"},
	config.KeyRelayPort:    {"RELAY_PORT"},
	config.KeyMetricsPort:  {"METRICS_PORT"},
	config.KeyMemoryPort:   {"MEMORY_PORT"},
	config.KeyRelayChannel: {"RELAY_CHANNEL"},
	config.KeyLogLevel:     {"NOVAOS_LOG_LEVEL"},
}

// envKeyReplacer turns "ports.relay" into NOVAOS_PORTS_RELAY.
var envKeyReplacer = strings.NewReplacer(".", "_")
