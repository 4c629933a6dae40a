package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultOpTimeout = 2 * time.Second

// RedisOptions configures a [RedisStore].
type RedisOptions struct {
	// URL is a redis://, rediss:// or unix:// connection URL including
	// credentials and database number.
	URL string

	// OpTimeout bounds every request-path operation. Defaults to 2s.
	OpTimeout time.Duration

	// Backoff is the reconnect policy for subscriptions and the pool's
	// command retries. Zero value uses [DefaultBackoff].
	Backoff Backoff

	// Logger receives connection lifecycle events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// RedisStore is a [Store] backed by a Redis server.
//
// Commands share a pooled client. Each [RedisStore.Subscribe] call owns a
// dedicated pub/sub connection that is torn down and re-established with
// [Backoff] whenever it fails, for as long as its context lives.
type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
	backoff   Backoff
	logger    *zap.Logger
}

// NewRedisStore creates a [RedisStore] from opts.
//
// The connection is established lazily; use [RedisStore.Ping] to check
// reachability. Returns an error only if the URL cannot be parsed.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	backoff := opts.Backoff
	if backoff.Base <= 0 || backoff.Max <= 0 {
		backoff = DefaultBackoff()
	}
	redisOpts.MinRetryBackoff = backoff.Base
	redisOpts.MaxRetryBackoff = backoff.Max

	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisStore{
		client:    redis.NewClient(redisOpts),
		opTimeout: opTimeout,
		backoff:   backoff,
		logger:    logger.With(zap.String("store", "redis"), zap.String("addr", redisOpts.Addr)),
	}, nil
}

// Get returns the string value at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("get", err)
	}
	return val, true, nil
}

// Set stores value at key with no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return classify("set", err)
	}
	return nil
}

// Incr increments the integer at key with INCR.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, classify("incr", err)
	}
	return n, nil
}

// ListAppend appends value with RPUSH. Concurrent appends are serialized by
// the server.
func (s *RedisStore) ListAppend(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return classify("rpush", err)
	}
	return nil
}

// ListRange returns elements with LRANGE.
func (s *RedisStore) ListRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	vals, err := s.client.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, classify("lrange", err)
	}
	return vals, nil
}

// ListLen returns the list length with LLEN.
func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, classify("llen", err)
	}
	return n, nil
}

// Publish sends message on channel with PUBLISH.
func (s *RedisStore) Publish(ctx context.Context, channel, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return classify("publish", err)
	}
	return nil
}

// Ping checks connectivity with PING.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Subscribe runs a standing subscription on channel until ctx is done.
//
// Every failure (initial dial, dropped connection, server restart) closes
// the pub/sub connection and retries after [Backoff.Delay]. The attempt
// counter resets once a subscription is confirmed, and [OnSubscribed] runs
// at that point. Returns ctx.Err() when the context ends; it never gives up
// on its own.
func (s *RedisStore) Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error {
	cfg := newSubscribeConfig(opts)
	attempt := 0
	for {
		err := s.receive(ctx, channel, handler, func() {
			attempt = 0
			cfg.onSubscribed()
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := s.backoff.Delay(attempt)
		s.logger.Warn("subscription lost, reconnecting",
			zap.String("channel", channel),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// receive holds one pub/sub connection until it fails or ctx ends.
func (s *RedisStore) receive(ctx context.Context, channel string, handler Handler, onSubscribed func()) error {
	ps := s.client.Subscribe(ctx, channel)
	defer func() { _ = ps.Close() }()

	// blocking reads ignore ctx, so closing the connection is what unblocks them
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		return classify("subscribe", err)
	}
	onSubscribed()
	s.logger.Info("subscribed", zap.String("channel", channel))

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return classify("receive", err)
		}
		handler(Message{Channel: msg.Channel, Payload: msg.Payload})
	}
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// classify wraps err with the sentinel matching its cause.
func classify(op string, err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %s: %v", ErrRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
