package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/repository/memstore"
)

func seedEvent(t *testing.T, store *memstore.Events, id string, at time.Time, thumb string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &model.Event{
		ID: id, OwnerID: "admin", Name: id, Title: id, Venue: "v",
		Domains: []string{"others"}, OccursAt: at, ThumbnailURL: thumb,
	}))
}

func newTestSweeper(deleteThumbs bool) (*Sweeper, *memstore.Events, *fakeImages, *fakePublisher, *cache.MemoryStore, time.Time) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.NewEvents()
	images := &fakeImages{}
	pub := &fakePublisher{}
	c := cache.NewMemoryStore(10)
	sw := NewSweeper(store, images, NewNotifier(c, testPrefix, pub, zerolog.Nop()),
		config.SweepConfig{Grace: 24 * time.Hour, DeleteThumbnails: deleteThumbs}, zerolog.Nop())
	sw.now = func() time.Time { return now }
	return sw, store, images, pub, c, now
}

func TestSweepGraceBoundary(t *testing.T) {
	sw, store, images, pub, c, now := newTestSweeper(true)
	ctx := context.Background()
	seedEvent(t, store, "recent", now.Add(-23*time.Hour), "https://cdn.test/events/r.png")
	seedEvent(t, store, "stale", now.Add(-25*time.Hour), "https://cdn.test/events/s.png")
	seedEvent(t, store, "future", now.Add(time.Hour), "")
	require.NoError(t, c.Set(ctx, testPrefix, []byte("x"), time.Hour))

	n, err := sw.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetByID(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.GetByID(ctx, "stale")
	assert.Error(t, err)

	assert.Equal(t, []string{"https://cdn.test/events/s.png"}, images.deletedURLs())
	_, ok, _ := c.Get(ctx, testPrefix)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return pub.has(queue.ActionSwept) }, time.Second, 10*time.Millisecond)

	// idempotent
	n, err = sw.RunOnce(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepCanKeepThumbnails(t *testing.T) {
	sw, store, images, _, _, now := newTestSweeper(false)
	seedEvent(t, store, "stale", now.Add(-48*time.Hour), "https://cdn.test/events/s.png")
	n, err := sw.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, images.deletedURLs())
}

type failingEvents struct{ *memstore.Events }

func (failingEvents) DeleteBefore(context.Context, time.Time) ([]model.Event, error) {
	return nil, assert.AnError
}

func TestSweepStoreFailure(t *testing.T) {
	sw := NewSweeper(failingEvents{memstore.NewEvents()}, nil, nil, config.SweepConfig{}, zerolog.Nop())
	_, err := sw.RunOnce(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

func TestRunSweepsAfterStartupDelay(t *testing.T) {
	sw, store, _, _, _, now := newTestSweeper(false)
	sw.cfg.StartupDelay = 10 * time.Millisecond
	seedEvent(t, store, "stale", now.Add(-48*time.Hour), "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sw.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool {
		_, err := store.GetByID(context.Background(), "stale")
		return err != nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestUntilMidnight(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	assert.Equal(t, 2*time.Hour, untilMidnight(time.Date(2026, 5, 1, 22, 0, 0, 0, loc)))
	assert.Equal(t, 24*time.Hour, untilMidnight(time.Date(2026, 5, 1, 0, 0, 0, 0, loc)))
}
