package snapshot

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/store"
	"github.com/novaos/novaos/internal/telemetry"
)

// Counter names exposed by GET /metrics.
const (
	QueueDepth    = "queueDepth"
	StreamsActive = "streamsActive"
	Revenue       = "revenue"
	Users         = "users"
)

// Store keys backing the default counters.
const (
	DefaultQueueKey  = "novaos:queue"
	StreamsActiveKey = "novaos:streams:active"
	RevenueKey       = "novaos:revenue"
	UsersKey         = "novaos:users"
)

type counterKind int

const (
	kindScalar counterKind = iota
	kindListLength
)

// Counter is a named integer derived from one store key.
type Counter struct {
	Name     string
	Key      string
	Fallback int64
	kind     counterKind
}

// ScalarCounter reads an integer stored at key.
func ScalarCounter(name, key string, fallback int64) Counter {
	return Counter{Name: name, Key: key, Fallback: fallback, kind: kindScalar}
}

// ListLengthCounter reports the length of the list at key.
func ListLengthCounter(name, key string, fallback int64) Counter {
	return Counter{Name: name, Key: key, Fallback: fallback, kind: kindListLength}
}

// Incrementable reports whether the counter can be bumped through the store.
// List lengths change by appending to the list, not by increment.
func (c Counter) Incrementable() bool {
	return c.kind == kindScalar
}

// DefaultCounters returns the fixed counter set. An empty queueKey uses
// [DefaultQueueKey].
func DefaultCounters(queueKey string) []Counter {
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}
	return []Counter{
		ListLengthCounter(QueueDepth, queueKey, 0),
		ScalarCounter(StreamsActive, StreamsActiveKey, 1),
		ScalarCounter(Revenue, RevenueKey, 25000),
		ScalarCounter(Users, UsersKey, 100),
	}
}

// Source says where a reading's value came from.
type Source int

const (
	SourceStore Source = iota
	SourceFallbackAbsent
	SourceFallbackUnavailable
)

func (s Source) String() string {
	switch s {
	case SourceStore:
		return "store"
	case SourceFallbackAbsent:
		return "absent"
	case SourceFallbackUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Reading is the typed result of reading one counter. Err holds the masked
// store or parse error when the fallback was used.
type Reading struct {
	Counter Counter
	Value   int64
	Source  Source
	Err     error
}

// FellBack reports whether Value is the counter's fallback default.
func (r Reading) FellBack() bool {
	return r.Source != SourceStore
}

// Reader reads counters, substituting fallbacks for failures.
type Reader struct {
	store    store.Store
	counters []Counter
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewReader creates a reader over counters.
func NewReader(st store.Store, counters []Counter, metrics *telemetry.Metrics, logger *zap.Logger) *Reader {
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: st, counters: counters, metrics: metrics, logger: logger}
}

// Counters returns the counters the reader serves.
func (r *Reader) Counters() []Counter {
	return r.counters
}

// Lookup returns the counter with the given name.
func (r *Reader) Lookup(name string) (Counter, bool) {
	for _, c := range r.counters {
		if c.Name == name {
			return c, true
		}
	}
	return Counter{}, false
}

// ReadAll reads every counter concurrently. Readings are returned in counter
// order and never carry a store error to the caller as a failure.
func (r *Reader) ReadAll(ctx context.Context) []Reading {
	readings := make([]Reading, len(r.counters))

	var wg sync.WaitGroup
	for i, c := range r.counters {
		wg.Add(1)
		go func(i int, c Counter) {
			defer wg.Done()
			readings[i] = r.Read(ctx, c)
		}(i, c)
	}
	wg.Wait()

	return readings
}

// Read reads a single counter.
func (r *Reader) Read(ctx context.Context, c Counter) Reading {
	reading := r.read(ctx, c)
	if reading.FellBack() {
		r.metrics.SnapshotFallbacks.WithLabelValues(c.Name, reading.Source.String()).Inc()
		r.logger.Debug("counter fallback",
			zap.String("counter", c.Name),
			zap.String("key", c.Key),
			zap.Stringer("source", reading.Source),
			zap.Error(reading.Err),
		)
	}
	return reading
}

func (r *Reader) read(ctx context.Context, c Counter) Reading {
	fallback := func(src Source, err error) Reading {
		return Reading{Counter: c, Value: c.Fallback, Source: src, Err: err}
	}

	if c.kind == kindListLength {
		n, err := r.store.ListLen(ctx, c.Key)
		if err != nil {
			return fallback(SourceFallbackUnavailable, err)
		}
		return Reading{Counter: c, Value: n, Source: SourceStore}
	}

	raw, ok, err := r.store.Get(ctx, c.Key)
	if err != nil {
		return fallback(SourceFallbackUnavailable, err)
	}
	if !ok {
		return fallback(SourceFallbackAbsent, nil)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// a value that is not an integer counts as absent
		return fallback(SourceFallbackAbsent, err)
	}
	return Reading{Counter: c, Value: n, Source: SourceStore}
}
