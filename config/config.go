// Package config provides YAML configuration parsing for novaos.
//
// This package enables running novaos as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// Values of the form ${VAR} or ${VAR:-default} are expanded from the
// environment.
//
// Example configuration:
//
//	store:
//	  url: ${REDIS_URL}
//	  op_timeout: 2s
//
//	ports:
//	  relay: 4000
//	  metrics: 5000
//	  memory: 6000
//
//	keys:
//	  queue: ${REDIS_QUEUE:-novaos:queue}
//
//	producers:
//	  - type: trend_fetcher
//	    interval: 2h
//	  - type: time_sentinel
//	    deadline: 2025-08-04
//	    threshold_days: 20
//	  - type: http_check
//	    name: API
//	    url: https://api.example.com/health
//	    extractor: json:status
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Producer types accepted in the producers list.
const (
	TypeTrendFetcher = "trend_fetcher"
	TypeTimeSentinel = "time_sentinel"
	TypeHTTPCheck    = "http_check"
)

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultRelayPort      = 4000
	DefaultMetricsPort    = 5000
	DefaultMemoryPort     = 6000
	DefaultRelayChannel   = "novaos:commands"
	DefaultQueueKey       = "novaos:queue"
	DefaultJournalKey     = "chat_memory"
	DefaultMaxConcurrency = 4
	DefaultLogLevel       = "info"
)

// Config is the root configuration structure for novaos.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [Resolve] to create a Config.
type Config struct {
	Store     StoreConfig      `yaml:"store"`
	Ports     PortsConfig      `yaml:"ports"`
	Channels  ChannelsConfig   `yaml:"channels"`
	Keys      KeysConfig       `yaml:"keys"`
	Producers []ProducerConfig `yaml:"producers"`
	Log       LogConfig        `yaml:"log"`

	// MaxConcurrency caps producer runs in flight. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// ClientQueueSize is how many undelivered events a relay client may
	// hold before it is evicted. Zero uses the relay default.
	ClientQueueSize int `yaml:"client_queue_size"`
}

// StoreConfig locates the shared store.
type StoreConfig struct {
	// URL is a redis://, rediss://, unix:// or memory:// URL. Required.
	URL string `yaml:"url"`

	// OpTimeout bounds every request-path store operation.
	OpTimeout Duration `yaml:"op_timeout"`

	// ReconnectBase and ReconnectMax shape the subscription reconnect
	// backoff. Both or neither must be set.
	ReconnectBase Duration `yaml:"reconnect_base"`
	ReconnectMax  Duration `yaml:"reconnect_max"`
}

// PortsConfig holds the listen port of each service. Equal ports share one
// listener.
type PortsConfig struct {
	Relay   int `yaml:"relay"`
	Metrics int `yaml:"metrics"`
	Memory  int `yaml:"memory"`
}

// ChannelsConfig names the pub/sub channels.
type ChannelsConfig struct {
	Relay string `yaml:"relay"`
}

// KeysConfig names the store lists the services read.
type KeysConfig struct {
	Queue   string `yaml:"queue"`
	Journal string `yaml:"journal"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// ProducerConfig defines one background producer.
type ProducerConfig struct {
	// Type is trend_fetcher, time_sentinel or http_check.
	Type string `yaml:"type"`

	// Name overrides the built-in name. Required for http_check.
	Name string `yaml:"name"`

	// Interval is the time between runs. Zero uses the type's default.
	Interval Duration `yaml:"interval"`

	// Timeout bounds a single run. Zero uses the producer default.
	Timeout Duration `yaml:"timeout"`

	// time_sentinel: Deadline is a date (2006-01-02, midnight UTC) or an
	// RFC 3339 timestamp.
	Deadline      string `yaml:"deadline"`
	ThresholdDays int    `yaml:"threshold_days"`
	Goal          string `yaml:"goal"`

	// http_check
	URL       string            `yaml:"url"`
	Method    string            `yaml:"method"`
	Headers   map[string]string `yaml:"headers"`
	Extractor ExtractorConfig   `yaml:"extractor"`
	EveryRun  bool              `yaml:"every_run"`
}

// ExtractorConfig specifies how an http_check judges a response.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json:status
//	extractor: json:checks.redis
//	extractor: contains:ok
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: json
//	  path: checks.redis
type ExtractorConfig struct {
	// Type is the extractor type: "default", "json", "contains", "http".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Text is the substring to search for (for type: contains).
	Text string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	case yaml.MappingNode:
		var raw struct {
			Type string `yaml:"type"`
			Path string `yaml:"path"`
			Text string `yaml:"text"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*e = ExtractorConfig{Type: raw.Type, Path: raw.Path, Text: raw.Text}
		return nil
	default:
		return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
	}
}

// parseShorthand parses "default", "http", "json:<path>" or
// "contains:<text>".
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if kind, value, ok := strings.Cut(s, ":"); ok {
		switch kind {
		case "json":
			*e = ExtractorConfig{Type: kind, Path: value}
		case "contains":
			*e = ExtractorConfig{Type: kind, Text: value}
		default:
			return fmt.Errorf("unknown extractor type %q", kind)
		}
		return nil
	}

	switch s {
	case "default", "http":
		e.Type = s
	default:
		return fmt.Errorf("unknown extractor %q (expected 'default', 'http', 'json:path', or 'contains:text')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1: variable name; group 2: ":-default" when present; group 3: the
// default value.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// An unset variable without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] != "", sub[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return def
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML configuration data, expands environment variables,
// applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(data)
}

// decode unmarshals data and expands environment variables, without
// defaults or validation.
func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expand substitutes environment variables in every string that may carry
// deployment-specific values.
func (c *Config) expand() error {
	fields := []struct {
		path string
		val  *string
	}{
		{"store.url", &c.Store.URL},
		{"channels.relay", &c.Channels.Relay},
		{"keys.queue", &c.Keys.Queue},
		{"keys.journal", &c.Keys.Journal},
		{"log.level", &c.Log.Level},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.path, err)
		}
		*f.val = expanded
	}

	for i := range c.Producers {
		p := &c.Producers[i]
		ctx := producerContext(i, p)

		expanded, err := expandEnvVars(p.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", ctx, err)
		}
		p.URL = expanded

		if p.Deadline, err = expandEnvVars(p.Deadline); err != nil {
			return fmt.Errorf("%s: deadline: %w", ctx, err)
		}

		for k, v := range p.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("%s: headers[%s]: %w", ctx, k, err)
			}
			p.Headers[k] = expanded
		}
	}
	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Ports.Relay == 0 {
		c.Ports.Relay = DefaultRelayPort
	}
	if c.Ports.Metrics == 0 {
		c.Ports.Metrics = DefaultMetricsPort
	}
	if c.Ports.Memory == 0 {
		c.Ports.Memory = DefaultMemoryPort
	}
	if c.Channels.Relay == "" {
		c.Channels.Relay = DefaultRelayChannel
	}
	if c.Keys.Queue == "" {
		c.Keys.Queue = DefaultQueueKey
	}
	if c.Keys.Journal == "" {
		c.Keys.Journal = DefaultJournalKey
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks the configuration, failing on the first problem.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return errors.New("store.url is required (set it in the config file or via REDIS_URL)")
	}
	u, err := url.Parse(c.Store.URL)
	if err != nil {
		return fmt.Errorf("store.url: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss", "unix", "memory":
	default:
		return fmt.Errorf("store.url: scheme must be redis, rediss, unix or memory, got %q", u.Scheme)
	}
	if c.Store.OpTimeout < 0 {
		return fmt.Errorf("store.op_timeout cannot be negative, got %s", c.Store.OpTimeout.Duration())
	}
	if (c.Store.ReconnectBase == 0) != (c.Store.ReconnectMax == 0) {
		return errors.New("store.reconnect_base and store.reconnect_max must be set together")
	}
	if c.Store.ReconnectBase < 0 || c.Store.ReconnectBase > c.Store.ReconnectMax {
		return errors.New("store.reconnect_base must be positive and not exceed store.reconnect_max")
	}

	for name, port := range map[string]int{"relay": c.Ports.Relay, "metrics": c.Ports.Metrics, "memory": c.Ports.Memory} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("ports.%s must be between 1 and 65535, got %d", name, port)
		}
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.ClientQueueSize < 0 {
		return fmt.Errorf("client_queue_size cannot be negative, got %d", c.ClientQueueSize)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	names := make(map[string]int, len(c.Producers))
	for i := range c.Producers {
		p := &c.Producers[i]
		if err := p.validate(i); err != nil {
			return err
		}
		name := p.EffectiveName()
		if prev, dup := names[name]; dup {
			return fmt.Errorf("producers[%d] (%s): duplicate name, also used by producers[%d]", i, name, prev)
		}
		names[name] = i
	}

	return nil
}

// EffectiveName returns the configured name or the built-in name of the
// producer type.
func (p *ProducerConfig) EffectiveName() string {
	if p.Name != "" {
		return p.Name
	}
	switch p.Type {
	case TypeTrendFetcher:
		return "TrendFetcher"
	case TypeTimeSentinel:
		return "TimeSentinel"
	default:
		return ""
	}
}

// DeadlineTime parses Deadline.
func (p *ProducerConfig) DeadlineTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, p.Deadline); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, p.Deadline)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q is not a date (2006-01-02) or RFC 3339 timestamp", p.Deadline)
	}
	return t, nil
}

func producerContext(i int, p *ProducerConfig) string {
	if name := p.EffectiveName(); name != "" {
		return fmt.Sprintf("producers[%d] (%s)", i, name)
	}
	return fmt.Sprintf("producers[%d]", i)
}

func (p *ProducerConfig) validate(i int) error {
	ctx := producerContext(i, p)

	if p.Interval != 0 && p.Interval.Duration() < time.Second {
		return fmt.Errorf("%s: interval must be at least 1s, got %s", ctx, p.Interval.Duration())
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%s: timeout cannot be negative, got %s", ctx, p.Timeout.Duration())
	}

	switch p.Type {
	case TypeTrendFetcher:
		return nil

	case TypeTimeSentinel:
		if p.Deadline == "" {
			return fmt.Errorf("%s: deadline is required", ctx)
		}
		if _, err := p.DeadlineTime(); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		if p.ThresholdDays < 0 {
			return fmt.Errorf("%s: threshold_days cannot be negative", ctx)
		}
		return nil

	case TypeHTTPCheck:
		if p.Name == "" {
			return fmt.Errorf("%s: name is required", ctx)
		}
		if p.URL == "" {
			return fmt.Errorf("%s: url is required", ctx)
		}
		parsedURL, err := url.Parse(p.URL)
		if err != nil {
			return fmt.Errorf("%s: invalid url: %w", ctx, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("%s: url scheme must be http or https, got %q", ctx, parsedURL.Scheme)
		}
		if p.Method != "" && p.Method != "GET" && p.Method != "HEAD" && p.Method != "POST" {
			return fmt.Errorf("%s: method must be GET, HEAD, or POST", ctx)
		}
		return validateExtractor(&p.Extractor, ctx)

	case "":
		return fmt.Errorf("%s: type is required", ctx)

	default:
		return fmt.Errorf("%s: unknown type %q (expected %s, %s or %s)",
			ctx, p.Type, TypeTrendFetcher, TypeTimeSentinel, TypeHTTPCheck)
	}
}

func validateExtractor(e *ExtractorConfig, context string) error {
	switch e.Type {
	case "", "default", "http":
		return nil
	case "json":
		if e.Path == "" {
			return fmt.Errorf("%s: extractor type 'json' requires a path", context)
		}
	case "contains":
		if e.Text == "" {
			return fmt.Errorf("%s: extractor type 'contains' requires text", context)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", context, e.Type)
	}
	return nil
}
