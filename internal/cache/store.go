// Package cache provides the response cache service used by the HTTP
// layer. Callers depend on Store only, so the process-local map and the
// Redis implementation are interchangeable.
package cache

import (
	"context"
	"time"
)

// Store is a byte cache with per-entry TTLs and prefix invalidation.
type Store interface {
	// Get returns the value stored under key while it is still fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidatePrefix removes every key starting with prefix and reports
	// how many were removed.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}
