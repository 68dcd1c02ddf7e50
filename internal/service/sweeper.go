package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/metrics"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/repository"
	"github.com/iliyamo/campus-events/internal/storage"
)

// Sweep triggers, used as the metrics label.
const (
	TriggerStartup  = "startup"
	TriggerDaily    = "daily"
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// Sweeper deletes events whose OccursAt lies more than the grace period
// in the past.
type Sweeper struct {
	events repository.EventStore
	images storage.ImageStore
	notify *Notifier
	cfg    config.SweepConfig
	log    zerolog.Logger
	now    func() time.Time

	// one sweep at a time
	mu sync.Mutex
}

func NewSweeper(events repository.EventStore, images storage.ImageStore, notify *Notifier,
	cfg config.SweepConfig, logger zerolog.Logger) *Sweeper {
	if images == nil {
		images = storage.Nop{}
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 24 * time.Hour
	}
	return &Sweeper{
		events: events,
		images: images,
		notify: notify,
		cfg:    cfg,
		log:    logger.With().Str("component", "sweeper").Logger(),
		now:    time.Now,
	}
}

// RunOnce performs a single sweep and returns the number of deleted events.
func (s *Sweeper) RunOnce(ctx context.Context, trigger string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	cutoff := s.now().UTC().Add(-s.cfg.Grace)
	gone, err := s.events.DeleteBefore(ctx, cutoff)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepRuns.WithLabelValues(trigger, "error").Inc()
		s.log.Error().Err(err).Str("trigger", trigger).Msg("sweep failed")
		return 0, apperr.Internal("cleanup failed", err)
	}
	metrics.SweepRuns.WithLabelValues(trigger, "ok").Inc()
	metrics.SweepDeleted.Add(float64(len(gone)))
	s.log.Info().Str("trigger", trigger).Int("deleted", len(gone)).Time("cutoff", cutoff).Msg("sweep finished")

	if len(gone) == 0 {
		return 0, nil
	}
	if s.cfg.DeleteThumbnails {
		for _, e := range gone {
			s.images.Delete(ctx, e.ThumbnailURL)
		}
	}
	s.notify.Changed(ctx, queue.EventChanged{Action: queue.ActionSwept, Count: len(gone)})
	return len(gone), nil
}

// Run schedules sweeps until ctx is cancelled: once after the startup
// delay, every Interval, and daily at local midnight.
func (s *Sweeper) Run(ctx context.Context) {
	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	midnight := time.NewTimer(untilMidnight(s.now()))
	defer midnight.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			_, _ = s.RunOnce(ctx, TriggerStartup)
		case <-tick:
			_, _ = s.RunOnce(ctx, TriggerInterval)
		case <-midnight.C:
			_, _ = s.RunOnce(ctx, TriggerDaily)
			midnight.Reset(untilMidnight(s.now()))
		}
	}
}

// untilMidnight returns the time left until the next local midnight.
func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
