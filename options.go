package novaos

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// config holds mutable state during NovaOS construction.
type config struct {
	storeURL       string
	opTimeout      time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration
	subscribeWait  time.Duration
	relayPort      int
	metricsPort    int
	memoryPort     int
	relayChannel   string
	queueKey       string
	journalKey     string
	clientQueue    int
	producers      []Producer
	maxConcurrency int
	logger         *zap.Logger
	registry       *prometheus.Registry
	runCallbacks   []func(RunResult)
}

// Option configures a [NovaOS] instance during construction.
//
// Options return an error if validation fails.
type Option func(*config) error

// WithStoreURL sets the shared store: redis://, rediss:// or unix:// for
// Redis, or memory:// for an in-process store. Required.
func WithStoreURL(url string) Option {
	return func(cfg *config) error {
		if url == "" {
			return errors.New("store URL cannot be empty")
		}
		cfg.storeURL = url
		return nil
	}
}

// WithOpTimeout bounds every store operation on a request path.
// Defaults to 2 seconds.
func WithOpTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("store operation timeout must be positive")
		}
		cfg.opTimeout = d
		return nil
	}
}

// WithSubscribeWait bounds how long [NovaOS.Start] waits for the store to
// confirm the relay subscription before starting producers and closing
// [NovaOS.Ready]. When the store is down at boot the wait expires and the
// service starts anyway, relaying once the subscription is established.
// Defaults to 5 seconds.
func WithSubscribeWait(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("subscribe wait must be positive")
		}
		cfg.subscribeWait = d
		return nil
	}
}

// WithReconnectBackoff sets the subscription reconnect policy: the n-th
// attempt waits base × n, capped at ceiling. Defaults to 100ms and 3s.
func WithReconnectBackoff(base, ceiling time.Duration) Option {
	return func(cfg *config) error {
		if base <= 0 || ceiling <= 0 {
			return errors.New("reconnect backoff must be positive")
		}
		if base > ceiling {
			return errors.New("reconnect backoff base cannot exceed ceiling")
		}
		cfg.backoffBase, cfg.backoffMax = base, ceiling
		return nil
	}
}

func validPort(port int) error {
	// 0 binds an ephemeral port
	if port < 0 || port > 65535 {
		return errors.New("port must be between 0 and 65535")
	}
	return nil
}

// WithRelayPort sets the port serving /ws and /events. Defaults to 4000.
func WithRelayPort(port int) Option {
	return func(cfg *config) error {
		if err := validPort(port); err != nil {
			return err
		}
		cfg.relayPort = port
		return nil
	}
}

// WithMetricsPort sets the port serving /metrics, /counters, /producers and
// /prometheus. Defaults to 5000.
func WithMetricsPort(port int) Option {
	return func(cfg *config) error {
		if err := validPort(port); err != nil {
			return err
		}
		cfg.metricsPort = port
		return nil
	}
}

// WithMemoryPort sets the port serving /memory. Defaults to 6000.
func WithMemoryPort(port int) Option {
	return func(cfg *config) error {
		if err := validPort(port); err != nil {
			return err
		}
		cfg.memoryPort = port
		return nil
	}
}

// WithRelayChannel sets the pub/sub channel relayed to clients and used by
// producers. Defaults to "novaos:commands".
func WithRelayChannel(channel string) Option {
	return func(cfg *config) error {
		if channel == "" {
			return errors.New("relay channel cannot be empty")
		}
		cfg.relayChannel = channel
		return nil
	}
}

// WithQueueKey sets the list whose length is reported as queueDepth.
// Defaults to "novaos:queue".
func WithQueueKey(key string) Option {
	return func(cfg *config) error {
		if key == "" {
			return errors.New("queue key cannot be empty")
		}
		cfg.queueKey = key
		return nil
	}
}

// WithJournalKey sets the list backing /memory. Defaults to "chat_memory".
func WithJournalKey(key string) Option {
	return func(cfg *config) error {
		if key == "" {
			return errors.New("journal key cannot be empty")
		}
		cfg.journalKey = key
		return nil
	}
}

// WithClientQueueSize sets how many undelivered events a relay client may
// hold before it is evicted. Defaults to 64.
func WithClientQueueSize(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("client queue size must be positive")
		}
		cfg.clientQueue = n
		return nil
	}
}

// WithProducer adds a background [Producer]. Can be called multiple times.
func WithProducer(p Producer) Option {
	return func(cfg *config) error {
		cfg.producers = append(cfg.producers, p)
		return nil
	}
}

// WithProducers adds several producers at once.
func WithProducers(producers ...Producer) Option {
	return func(cfg *config) error {
		cfg.producers = append(cfg.producers, producers...)
		return nil
	}
}

// WithMaxConcurrency sets how many producer runs may be in flight at once.
// Defaults to 4.
func WithMaxConcurrency(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRegistry sets the Prometheus registry the service's collectors are
// registered on and /prometheus exposes. Defaults to a fresh registry.
//
// A registry serves one instance: starting a second NovaOS on the same
// registry makes its [NovaOS.Start] return an error.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *config) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithRunCallback registers a function called after every producer run.
//
// Callbacks run in registration order on a single goroutine and must not
// block. Panics are recovered and logged. Nil callbacks are ignored.
func WithRunCallback(cb func(RunResult)) Option {
	return func(cfg *config) error {
		if cb != nil {
			cfg.runCallbacks = append(cfg.runCallbacks, cb)
		}
		return nil
	}
}
