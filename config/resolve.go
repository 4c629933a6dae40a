package config

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Overlay keys read from viper by [Resolve]. The CLI binds each to an
// environment variable and a flag.
const (
	KeyStoreURL      = "store.url"
	KeyQueue         = "keys.queue"
	KeyRelayPort     = "ports.relay"
	KeyMetricsPort   = "ports.metrics"
	KeyMemoryPort    = "ports.memory"
	KeyRelayChannel  = "channels.relay"
	KeyLogLevel      = "log.level"
	KeyMaxConcurrent = "max_concurrency"
)

// Resolve builds the effective configuration: the YAML file at path (if
// path is non-empty), overlaid with every key set in v, then defaults and
// validation.
//
// Overlay values win over the file, so REDIS_URL in the environment
// replaces store.url. A numeric key holding something that is not an
// integer (METRICS_PORT=abc) is an error rather than being ignored.
func Resolve(path string, v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v != nil {
		if err := overlay(cfg, v); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(cfg *Config, v *viper.Viper) error {
	strs := map[string]*string{
		KeyStoreURL:     &cfg.Store.URL,
		KeyQueue:        &cfg.Keys.Queue,
		KeyRelayChannel: &cfg.Channels.Relay,
		KeyLogLevel:     &cfg.Log.Level,
	}
	for key, dst := range strs {
		if s := v.GetString(key); v.IsSet(key) && s != "" {
			*dst = s
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{KeyRelayPort, &cfg.Ports.Relay},
		{KeyMetricsPort, &cfg.Ports.Metrics},
		{KeyMemoryPort, &cfg.Ports.Memory},
		{KeyMaxConcurrent, &cfg.MaxConcurrency},
	}
	var errs []error
	for _, o := range ints {
		raw := v.Get(o.key)
		if !v.IsSet(o.key) || raw == nil || raw == "" {
			continue
		}
		n, err := cast.ToIntE(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", o.key, raw))
			continue
		}
		// zero leaves the file value in place
		if n != 0 {
			*o.dst = n
		}
	}
	return errors.Join(errs...)
}
