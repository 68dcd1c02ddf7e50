package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/repository/memstore"
	"github.com/iliyamo/campus-events/internal/storage"
)

const testPrefix = "cache:/api/v1/events"

type eventFixture struct {
	svc    *EventService
	store  *memstore.Events
	images *fakeImages
	cache  *cache.MemoryStore
	pub    *fakePublisher
	now    time.Time
}

func newEventFixture(t *testing.T) *eventFixture {
	t.Helper()
	f := &eventFixture{
		store:  memstore.NewEvents(),
		images: &fakeImages{},
		cache:  cache.NewMemoryStore(100),
		pub:    &fakePublisher{},
		now:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	notify := NewNotifier(f.cache, testPrefix, f.pub, zerolog.Nop())
	f.svc = NewEventService(f.store, f.images, notify, time.UTC, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

var (
	adminA  = model.User{ID: "admin-a", Fullname: "Robotics Club", Role: model.RoleAdmin}
	adminB  = model.User{ID: "admin-b", Fullname: "Drama Club", Role: model.RoleAdmin}
	student = model.User{ID: "stu", Fullname: "Stu", Role: model.RoleStudent}
)

func validInput() EventInput {
	return EventInput{
		Name:    "robo-26",
		Title:   "Robotics Expo",
		Date:    "2026-05-10",
		Time:    "5:30 PM",
		Venue:   "Hall A",
		Domains: []string{"technical"},
	}
}

func (f *eventFixture) create(t *testing.T, owner model.User, in EventInput) *model.Event {
	t.Helper()
	e, err := f.svc.Create(context.Background(), owner, in, nil)
	require.NoError(t, err)
	return e
}

func TestCreateEvent(t *testing.T) {
	f := newEventFixture(t)
	in := validInput()
	in.Domains = []string{"Technical, workshop"}
	img := &storage.Image{Body: strings.NewReader("png"), Filename: "x.png"}

	e, err := f.svc.Create(context.Background(), adminA, in, img)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.True(t, e.IsApproved)
	assert.Equal(t, "Robotics Club", e.OrganizerName)
	assert.Equal(t, []string{"technical", "workshop"}, e.Domains)
	assert.Equal(t, time.Date(2026, 5, 10, 17, 30, 0, 0, time.UTC), e.OccursAt)
	assert.NotEmpty(t, e.ThumbnailURL)
	assert.Eventually(t, func() bool { return f.pub.has(queue.ActionCreated) }, time.Second, 10*time.Millisecond)
}

func TestCreateEventRejects(t *testing.T) {
	f := newEventFixture(t)
	tests := []struct {
		name  string
		owner model.User
		edit  func(*EventInput)
		want  error
	}{
		{"student owner", student, func(*EventInput) {}, apperr.ErrForbidden},
		{"missing venue", adminA, func(in *EventInput) { in.Venue = "" }, apperr.ErrBadRequest},
		{"no domains", adminA, func(in *EventInput) { in.Domains = nil }, apperr.ErrBadRequest},
		{"unknown domain", adminA, func(in *EventInput) { in.Domains = []string{"gaming"} }, apperr.ErrBadRequest},
		{"bad time", adminA, func(in *EventInput) { in.Time = "teatime" }, apperr.ErrBadRequest},
		{"bad date", adminA, func(in *EventInput) { in.Date = "2026-02-30" }, apperr.ErrBadRequest},
		{"bad link", adminA, func(in *EventInput) { in.RegistrationLink = "ftp://x" }, apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)
			_, err := f.svc.Create(context.Background(), tt.owner, in, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateEventUploadFailureLeavesURLEmpty(t *testing.T) {
	f := newEventFixture(t)
	f.images.fail = true
	e, err := f.svc.Create(context.Background(), adminA, validInput(),
		&storage.Image{Body: strings.NewReader("png"), Filename: "x.png"})
	require.NoError(t, err)
	assert.Empty(t, e.ThumbnailURL)
}

func TestUpdateEventOwnership(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	e := f.create(t, adminA, validInput())

	title := "Hijacked"
	_, err := f.svc.Update(ctx, e.ID, adminB.ID, EventPatch{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	err = f.svc.Delete(ctx, e.ID, adminB.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	unchanged, err := f.svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, unchanged)

	_, err = f.svc.Update(ctx, "missing", adminA.ID, EventPatch{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateEventRederivesSchedule(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	e := f.create(t, adminA, validInput())

	venue := "Hall B"
	got, err := f.svc.Update(ctx, e.ID, adminA.ID, EventPatch{Venue: &venue})
	require.NoError(t, err)
	assert.Equal(t, e.OccursAt, got.OccursAt)
	assert.Equal(t, "Hall B", got.Venue)

	date, clock := "2026-06-01", "09:15"
	got, err = f.svc.Update(ctx, e.ID, adminA.ID, EventPatch{Date: &date, Time: &clock})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 15, 0, 0, time.UTC), got.OccursAt)

	date = "2026-06-02"
	got, err = f.svc.Update(ctx, e.ID, adminA.ID, EventPatch{Date: &date})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 2, 9, 15, 0, 0, time.UTC), got.OccursAt)

	bad := "25:99"
	_, err = f.svc.Update(ctx, e.ID, adminA.ID, EventPatch{Time: &bad})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestReplaceThumbnail(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	e, err := f.svc.Create(ctx, adminA, validInput(), &storage.Image{Body: strings.NewReader("1"), Filename: "a.png"})
	require.NoError(t, err)
	old := e.ThumbnailURL

	_, err = f.svc.ReplaceThumbnail(ctx, e.ID, adminA.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.ReplaceThumbnail(ctx, e.ID, adminB.ID, &storage.Image{Body: strings.NewReader("2")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.ReplaceThumbnail(ctx, e.ID, adminA.ID, &storage.Image{Body: strings.NewReader("2"), Filename: "b.png"})
	require.NoError(t, err)
	assert.NotEqual(t, old, got.ThumbnailURL)
	assert.Contains(t, f.images.deletedURLs(), old)

	f.images.fail = true
	_, err = f.svc.ReplaceThumbnail(ctx, e.ID, adminA.ID, &storage.Image{Body: strings.NewReader("3")})
	assert.ErrorIs(t, err, apperr.ErrInternal)

	// a failed upload keeps the current image in place
	stored, err := f.svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ThumbnailURL, stored.ThumbnailURL)
	assert.NotContains(t, f.images.deletedURLs(), got.ThumbnailURL)
}

func TestDeleteEvent(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	e, err := f.svc.Create(ctx, adminA, validInput(), &storage.Image{Body: strings.NewReader("1"), Filename: "a.png"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, e.ID, adminA.ID))
	_, err = f.svc.GetByID(ctx, e.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, f.images.deletedURLs(), e.ThumbnailURL)
	assert.Eventually(t, func() bool { return f.pub.has(queue.ActionDeleted) }, time.Second, 10*time.Millisecond)
}

func TestWritesInvalidateEventCache(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	seed := func() {
		require.NoError(t, f.cache.Set(ctx, testPrefix+"?page=1&limit=10", []byte("stale"), time.Hour))
		require.NoError(t, f.cache.Set(ctx, "cache:/api/v1/auth/me", []byte("keep"), time.Hour))
	}
	cached := func() bool {
		_, ok, _ := f.cache.Get(ctx, testPrefix+"?page=1&limit=10")
		return ok
	}

	seed()
	e := f.create(t, adminA, validInput())
	assert.False(t, cached(), "create")

	seed()
	title := "New"
	_, err := f.svc.Update(ctx, e.ID, adminA.ID, EventPatch{Title: &title})
	require.NoError(t, err)
	assert.False(t, cached(), "update")

	seed()
	require.NoError(t, f.svc.Delete(ctx, e.ID, adminA.ID))
	assert.False(t, cached(), "delete")

	_, ok, _ := f.cache.Get(ctx, "cache:/api/v1/auth/me")
	assert.True(t, ok)
}

func TestListPublicPagination(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		in := validInput()
		in.Name = fmt.Sprintf("e%02d", i)
		// pairs share a start time so the id tie-break is exercised
		in.Date = fmt.Sprintf("2026-05-%02d", 2+i/2)
		f.create(t, adminA, in)
	}
	past := validInput()
	past.Date = "2026-04-01"
	f.create(t, adminA, past)

	ids := func(p model.EventPage) []string {
		out := make([]string, len(p.Events))
		for i, e := range p.Events {
			out[i] = e.ID
		}
		return out
	}
	p1, err := f.svc.ListPublic(ctx, 1, 10)
	require.NoError(t, err)
	p2, err := f.svc.ListPublic(ctx, 2, 10)
	require.NoError(t, err)
	all, err := f.svc.ListPublic(ctx, 1, 20)
	require.NoError(t, err)

	assert.Equal(t, ids(all), append(ids(p1), ids(p2)...))
	assert.Equal(t, int64(25), p1.TotalEvents)
	assert.Equal(t, 3, p1.TotalPages)
	assert.True(t, p1.HasNextPage)
	assert.False(t, p1.HasPrevPage)
	assert.True(t, p2.HasPrevPage)

	p3, err := f.svc.ListPublic(ctx, 3, 10)
	require.NoError(t, err)
	assert.Len(t, p3.Events, 5)
	assert.False(t, p3.HasNextPage)
}

func TestListPublicPastLastPageIsEmpty(t *testing.T) {
	f := newEventFixture(t)
	for i := 0; i < 3; i++ {
		in := validInput()
		in.Name = fmt.Sprintf("e%d", i)
		f.create(t, adminA, in)
	}
	for _, n := range []int{4, math.MaxInt64 / 5, math.MaxInt} {
		p, err := f.svc.ListPublic(context.Background(), n, 10)
		require.NoError(t, err, "page %d", n)
		assert.Empty(t, p.Events)
		assert.EqualValues(t, 3, p.TotalEvents)
		assert.False(t, p.HasNextPage)
	}
}

func TestListByInterestsAndOwner(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	tech := f.create(t, adminA, validInput())
	sports := validInput()
	sports.Domains = []string{"sports"}
	f.create(t, adminB, sports)

	_, err := f.svc.ListByInterests(ctx, nil, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	page, err := f.svc.ListByInterests(ctx, []string{"Technical", "literary"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, tech.ID, page.Events[0].ID)

	mine, err := f.svc.ListOwnedBy(ctx, adminA.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine.Events, 1)
	assert.Equal(t, model.DefaultLimit, mine.Limit)
}
