package cache

import (
	"context"
	"time"

	"github.com/iliyamo/campus-events/internal/metrics"
)

// Instrumented counts hits, misses, errors and invalidated keys of the
// wrapped store.
type Instrumented struct {
	next    Store
	backend string
}

func NewInstrumented(next Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := i.next.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheOps.WithLabelValues(i.backend, "error").Inc()
	case ok:
		metrics.CacheOps.WithLabelValues(i.backend, "hit").Inc()
	default:
		metrics.CacheOps.WithLabelValues(i.backend, "miss").Inc()
	}
	return v, ok, err
}

func (i *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := i.next.Set(ctx, key, value, ttl)
	if err != nil {
		metrics.CacheOps.WithLabelValues(i.backend, "error").Inc()
	}
	return err
}

func (i *Instrumented) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := i.next.InvalidatePrefix(ctx, prefix)
	metrics.CacheInvalidated.WithLabelValues(i.backend).Add(float64(n))
	return n, err
}
