package store

import (
	"errors"
	"fmt"
	"net/url"
)

// MemoryScheme selects the in-process [MemoryStore] in [Open].
const MemoryScheme = "memory"

// Open returns the [Store] implementation for the URL scheme in opts.URL.
//
// Supported schemes: redis, rediss and unix (a [RedisStore]) and memory
// (a fresh [MemoryStore]).
func Open(opts RedisOptions) (Store, error) {
	if opts.URL == "" {
		return nil, errors.New("store url is required")
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid store url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss", "unix":
		return NewRedisStore(opts)
	case MemoryScheme:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store url scheme %q (expected redis, rediss, unix or memory)", u.Scheme)
	}
}
