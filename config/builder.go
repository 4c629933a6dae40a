package config

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/novaos/novaos"
)

// BuildProducers converts the producers list into SDK Producer values, in
// configuration order.
func BuildProducers(cfg *Config) ([]novaos.Producer, error) {
	producers := make([]novaos.Producer, 0, len(cfg.Producers))
	for i := range cfg.Producers {
		p, err := buildProducer(&cfg.Producers[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", producerContext(i, &cfg.Producers[i]), err)
		}
		producers = append(producers, p)
	}
	return producers, nil
}

// BuildOptions converts the whole configuration into options for
// [novaos.New], including the producers. logger may be nil.
func BuildOptions(cfg *Config, logger *zap.Logger) ([]novaos.Option, error) {
	producers, err := BuildProducers(cfg)
	if err != nil {
		return nil, err
	}

	opts := []novaos.Option{
		novaos.WithStoreURL(cfg.Store.URL),
		novaos.WithRelayPort(cfg.Ports.Relay),
		novaos.WithMetricsPort(cfg.Ports.Metrics),
		novaos.WithMemoryPort(cfg.Ports.Memory),
		novaos.WithRelayChannel(cfg.Channels.Relay),
		novaos.WithQueueKey(cfg.Keys.Queue),
		novaos.WithJournalKey(cfg.Keys.Journal),
		novaos.WithMaxConcurrency(cfg.MaxConcurrency),
		novaos.WithProducers(producers...),
	}

	if cfg.Store.OpTimeout != 0 {
		opts = append(opts, novaos.WithOpTimeout(cfg.Store.OpTimeout.Duration()))
	}
	if cfg.Store.ReconnectBase != 0 {
		opts = append(opts, novaos.WithReconnectBackoff(
			cfg.Store.ReconnectBase.Duration(), cfg.Store.ReconnectMax.Duration()))
	}
	if cfg.ClientQueueSize != 0 {
		opts = append(opts, novaos.WithClientQueueSize(cfg.ClientQueueSize))
	}
	if logger != nil {
		opts = append(opts, novaos.WithLogger(logger))
	}

	return opts, nil
}

func buildProducer(pc *ProducerConfig) (novaos.Producer, error) {
	var opts []novaos.ProducerOption
	if pc.Name != "" {
		opts = append(opts, novaos.WithName(pc.Name))
	}
	if pc.Interval != 0 {
		opts = append(opts, novaos.WithInterval(pc.Interval.Duration()))
	}
	if pc.Timeout != 0 {
		opts = append(opts, novaos.WithTimeout(pc.Timeout.Duration()))
	}

	switch pc.Type {
	case TypeTrendFetcher:
		return novaos.TrendFetcher(opts...)

	case TypeTimeSentinel:
		at, err := pc.DeadlineTime()
		if err != nil {
			return novaos.Producer{}, err
		}
		return novaos.TimeSentinel(novaos.Deadline{
			At:            at,
			Goal:          pc.Goal,
			ThresholdDays: pc.ThresholdDays,
		}, opts...)

	case TypeHTTPCheck:
		// the check already carries the name
		var checkOpts []novaos.CheckOption
		var schedule []novaos.ProducerOption
		if pc.Interval != 0 {
			schedule = append(schedule, novaos.WithInterval(pc.Interval.Duration()))
		}
		if pc.Timeout != 0 {
			schedule = append(schedule, novaos.WithTimeout(pc.Timeout.Duration()))
		}
		if len(schedule) > 0 {
			checkOpts = append(checkOpts, novaos.WithSchedule(schedule...))
		}
		if pc.Method != "" {
			checkOpts = append(checkOpts, novaos.WithMethod(pc.Method))
		}
		if len(pc.Headers) > 0 {
			checkOpts = append(checkOpts, novaos.WithHeaders(mapToKeyValuePairs(pc.Headers)...))
		}
		if extractor := buildExtractor(pc.Extractor); extractor != nil {
			checkOpts = append(checkOpts, novaos.WithExtractor(extractor))
		}
		if pc.EveryRun {
			checkOpts = append(checkOpts, novaos.AnnounceEveryRun())
		}
		return novaos.HTTPCheck(pc.Name, pc.URL, checkOpts...)

	default:
		return novaos.Producer{}, fmt.Errorf("unknown type %q", pc.Type)
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildExtractor converts ExtractorConfig to a HealthExtractor.
// Returns nil for default/empty extractors (the SDK uses DefaultHealth).
func buildExtractor(ec ExtractorConfig) novaos.HealthExtractor {
	switch ec.Type {
	case "http":
		return novaos.StatusCodeHealth
	case "json":
		return novaos.JSONFieldHealth(ec.Path)
	case "contains":
		return novaos.BodyContainsHealth(ec.Text)
	default:
		return nil
	}
}
