// Package store provides the shared store client used by every novaos service.
//
// The store holds scalar counters, the append-only journal list and the
// pub/sub channel that producers publish events on. The main components are:
//
//   - [Store]: Interface for key, list and pub/sub operations
//   - [RedisStore]: Redis implementation with a reconnecting subscription
//   - [MemoryStore]: In-process implementation for local runs and tests
//   - [Backoff]: Linear reconnect delay with an upper bound
//
// All failures wrap [ErrUnavailable] or [ErrRejected] so that callers can
// mask transient store trouble without string matching. Use [Open] to pick
// an implementation from a URL.
package store
