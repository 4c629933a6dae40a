package novaos

import (
	"context"
	"errors"
	"time"

	"github.com/novaos/novaos/internal/producer"
)

const (
	defaultProducerInterval = time.Hour
	defaultProducerTimeout  = 30 * time.Second
)

// Event is the JSON payload a producer announces on the relay channel:
// {"agent": ..., "text": ...}. An empty Agent is filled in with the
// producer's name.
type Event = producer.Event

// Store is the subset of the shared store a producer may use during a run.
//
// Counter keys follow the names read by the snapshot service, e.g.
// [StreamsActiveKey].
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Incr(ctx context.Context, key string) (int64, error)
	ListAppend(ctx context.Context, key, value string) error
	ListLen(ctx context.Context, key string) (int64, error)
}

// ProducerFunc performs one run of a producer. Returning a nil event means
// there is nothing to announce this time; returning an error fails the run.
//
// The context carries the producer's timeout.
type ProducerFunc func(ctx context.Context, st Store) (*Event, error)

// Producer is an immutable description of a periodic background producer.
//
// Producers are created with [NewProducer] or one of the built-ins
// ([TrendFetcher], [TimeSentinel], [HTTPCheck]) and passed to [New] via
// [WithProducer].
type Producer struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      ProducerFunc
}

// Name returns the producer name. It is also the default event agent.
func (p Producer) Name() string {
	return p.name
}

// Interval returns the time between run starts.
func (p Producer) Interval() time.Duration {
	return p.interval
}

// Timeout returns the bound on a single run.
func (p Producer) Timeout() time.Duration {
	return p.timeout
}

// NewProducer creates a [Producer] named name that calls fn on every run.
//
// Defaults: interval 1 hour, timeout 30 seconds.
//
// Example:
//
//	p, err := novaos.NewProducer("Heartbeat", func(ctx context.Context, st novaos.Store) (*novaos.Event, error) {
//	    return &novaos.Event{Text: "still here"}, nil
//	}, novaos.WithInterval(10*time.Minute))
func NewProducer(name string, fn ProducerFunc, opts ...ProducerOption) (Producer, error) {
	if name == "" {
		return Producer{}, errors.New("producer name cannot be empty")
	}
	if fn == nil {
		return Producer{}, errors.New("producer function cannot be nil")
	}

	cfg := &producerConfig{
		name:     name,
		interval: defaultProducerInterval,
		timeout:  defaultProducerTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Producer{}, err
		}
	}

	return Producer{
		name:     cfg.name,
		interval: cfg.interval,
		timeout:  cfg.timeout,
		run:      fn,
	}, nil
}

// task adapts the producer to the scheduler, binding it to st.
func (p Producer) task(st Store) producer.Task {
	run := p.run
	return producer.Task{
		Name:     p.name,
		Interval: p.interval,
		Timeout:  p.timeout,
		Run: func(ctx context.Context) (*producer.Event, error) {
			return run(ctx, st)
		},
	}
}

type producerConfig struct {
	name     string
	interval time.Duration
	timeout  time.Duration
}

// ProducerOption configures a [Producer] during construction.
type ProducerOption func(*producerConfig) error

// WithName overrides the producer name, e.g. to run two [TimeSentinel]s
// side by side.
func WithName(name string) ProducerOption {
	return func(cfg *producerConfig) error {
		if name == "" {
			return errors.New("producer name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithInterval sets the time between run starts. Must be at least 1 second.
func WithInterval(d time.Duration) ProducerOption {
	return func(cfg *producerConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		cfg.interval = d
		return nil
	}
}

// WithTimeout bounds a single run, including the store check and publish.
func WithTimeout(d time.Duration) ProducerOption {
	return func(cfg *producerConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}
