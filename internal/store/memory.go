package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// subscriberBuffer is the per-subscription queue depth in [MemoryStore].
const subscriberBuffer = 256

// MemoryStore is an in-process implementation of [Store].
//
// MemoryStore provides thread-safe keys and lists plus a publish-subscribe
// mechanism with the same delivery contract as Redis: messages reach only
// the subscriptions that exist at publish time and are never replayed.
//
// Each subscription has a buffered queue (256 messages). Publish is
// non-blocking; if a subscription's queue is full the message is dropped for
// that subscription so one slow handler cannot block publishers.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	lists  map[string][]string

	subMu       sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. Close is a no-op.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:      make(map[string]string),
		lists:       make(map[string][]string),
		subscribers: make(map[string]map[chan Message]struct{}),
	}
}

// Get returns the value at key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.values[key]
	return val, ok, nil
}

// Set stores value at key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Incr increments the integer at key. Non-integer values are rejected.
func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if raw, ok := m.values[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: incr: value at %q is not an integer", ErrRejected, key)
		}
		n = parsed
	}
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

// ListAppend appends value to the list at key.
func (m *MemoryStore) ListAppend(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.lists[key] = append(m.lists[key], value)
	m.mu.Unlock()
	return nil
}

// ListRange returns a copy of the requested slice of the list at key.
func (m *MemoryStore) ListRange(_ context.Context, key string, start, end int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.lists[key]
	lo, hi, ok := normalizeRange(start, end, int64(len(list)))
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, list[lo:hi+1])
	return out, nil
}

// ListLen returns the length of the list at key.
func (m *MemoryStore) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[key])), nil
}

// Publish delivers message to every current subscription on channel.
//
// This is non-blocking: if a subscription's queue is full, the message is
// dropped for that subscription rather than blocking the publisher.
func (m *MemoryStore) Publish(_ context.Context, channel, message string) error {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	msg := Message{Channel: channel, Payload: message}
	for ch := range m.subscribers[channel] {
		select {
		case ch <- msg:
		default:
			// subscriber is slow, drop the message
		}
	}
	return nil
}

// Subscribe delivers messages published on channel to handler until ctx is
// done. It returns ctx.Err(). [OnSubscribed] runs once the subscription is
// registered.
func (m *MemoryStore) Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubscribeOption) error {
	cfg := newSubscribeConfig(opts)
	ch := make(chan Message, subscriberBuffer)

	m.subMu.Lock()
	subs, ok := m.subscribers[channel]
	if !ok {
		subs = make(map[chan Message]struct{})
		m.subscribers[channel] = subs
	}
	subs[ch] = struct{}{}
	m.subMu.Unlock()

	defer m.unsubscribe(channel, ch)
	cfg.onSubscribed()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			handler(msg)
		}
	}
}

// Subscribers returns the number of active subscriptions on channel.
func (m *MemoryStore) Subscribers(channel string) int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.subscribers[channel])
}

// unsubscribe removes a subscription queue.
func (m *MemoryStore) unsubscribe(channel string, ch chan Message) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	subs := m.subscribers[channel]
	delete(subs, ch)
	if len(subs) == 0 {
		delete(m.subscribers, channel)
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// normalizeRange converts Redis-style inclusive indices into bounds within
// a list of length n. ok is false when the range is empty.
func normalizeRange(start, end, n int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return 0, 0, false
	}
	return start, end, true
}
