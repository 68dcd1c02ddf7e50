// Package service holds the application logic behind the HTTP handlers:
// account sessions, event management and the retention sweeper.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/queue"
)

const publishTimeout = 5 * time.Second

// Notifier runs the side effects of every event write: it drops cached
// event responses and publishes a change notification. Both are best-effort.
type Notifier struct {
	cache  cache.Store
	prefix string
	pub    queue.Publisher
	log    zerolog.Logger

	pending sync.WaitGroup
}

// NewNotifier builds a Notifier. A nil store disables invalidation and a
// nil publisher disables publishing.
func NewNotifier(store cache.Store, prefix string, pub queue.Publisher, logger zerolog.Logger) *Notifier {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &Notifier{cache: store, prefix: prefix, pub: pub, log: logger}
}

// EventsCachePrefix is the key prefix shared by every cached /events response.
func EventsCachePrefix(cachePrefix string) string {
	return cachePrefix + ":/api/v1/events"
}

// Changed is a no-op on a nil Notifier.
func (n *Notifier) Changed(ctx context.Context, ev queue.EventChanged) {
	if n == nil {
		return
	}
	n.invalidate(ctx)
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	// the request may finish before the broker answers
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		_ = n.pub.Publish(pctx, ev)
	}()
}

// Wait blocks until every publish started by Changed has returned. Call it
// before closing the publisher.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.pending.Wait()
}

func (n *Notifier) invalidate(ctx context.Context) {
	if n.cache == nil {
		return
	}
	removed, err := n.cache.InvalidatePrefix(ctx, n.prefix)
	if err != nil {
		n.log.Warn().Err(err).Str("prefix", n.prefix).Msg("cache invalidation failed")
		return
	}
	n.log.Debug().Int("removed", removed).Msg("event cache invalidated")
}
