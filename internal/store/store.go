package store

import (
	"context"
	"errors"
)

// ErrUnavailable is wrapped by every error caused by the backing store being
// unreachable, timing out, or dropping the connection. Callers test for it
// with errors.Is.
var ErrUnavailable = errors.New("store unavailable")

// ErrRejected is wrapped when the store was reachable but refused the
// command (wrong value type, non-integer increment, ...).
var ErrRejected = errors.New("store rejected command")

// Message is a single payload received on a subscribed channel.
type Message struct {
	// Channel is the channel the message was published on.
	Channel string

	// Payload is the raw message body as published.
	Payload string
}

// Handler receives channel messages from [Store.Subscribe].
//
// Handlers are invoked from a single goroutine, once per message, in the
// order messages arrive on the channel. A slow handler delays the messages
// behind it.
type Handler func(Message)

// Store defines the shared key-value, list and pub/sub operations.
//
// Store implementations must be safe for concurrent access. Every operation
// may block on network I/O; callers must not hold locks across a call.
type Store interface {
	// Get returns the value at key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Incr atomically increments the integer at key by one and returns the
	// new value. An absent key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	// ListAppend appends value to the tail of the list at key.
	ListAppend(ctx context.Context, key, value string) error

	// ListRange returns list elements between start and end inclusive.
	// Negative indices count from the tail, so (0, -1) returns the whole list.
	ListRange(ctx context.Context, key string, start, end int64) ([]string, error)

	// ListLen returns the length of the list at key (zero when absent).
	ListLen(ctx context.Context, key string) (int64, error)

	// Publish sends message on channel to all current subscribers.
	// Messages are not persisted.
	Publish(ctx context.Context, channel, message string) error

	// Subscribe is a standing subscription to channel. It blocks until ctx
	// is done, invoking handler for every message received. A lost
	// connection is re-established with backoff; messages published while
	// disconnected are not delivered.
	Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases all connections held by the store.
	Close() error
}

// SubscribeOption configures a call to [Store.Subscribe].
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	onSubscribed func()
}

// OnSubscribed registers fn to run each time the subscription is confirmed
// by the store, including after every reconnect. Messages published from
// the moment fn is called are delivered to the handler.
func OnSubscribed(fn func()) SubscribeOption {
	return func(c *subscribeConfig) {
		c.onSubscribed = fn
	}
}

func newSubscribeConfig(opts []SubscribeOption) subscribeConfig {
	cfg := subscribeConfig{onSubscribed: func() {}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.onSubscribed == nil {
		cfg.onSubscribed = func() {}
	}
	return cfg
}
