package store

import "time"

const (
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffMax  = 3 * time.Second
)

// Backoff computes reconnect delays as base × attempt, capped at Max.
//
// The zero value uses a 100ms base and a 3s cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the reconnect policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Base: defaultBackoffBase, Max: defaultBackoffMax}
}

// Delay returns the wait before reconnect attempt n (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base, ceiling := b.Base, b.Max
	if base <= 0 {
		base = defaultBackoffBase
	}
	if ceiling <= 0 {
		ceiling = defaultBackoffMax
	}
	if attempt < 1 {
		attempt = 1
	}
	// avoid overflowing base*attempt for very long outages
	if attempt > int(ceiling/base) {
		return ceiling
	}
	return base * time.Duration(attempt)
}
