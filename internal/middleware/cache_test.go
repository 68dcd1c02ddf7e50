package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/model"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenStore) InvalidatePrefix(context.Context, string) (int, error) { return 0, nil }

type hitCounter struct {
	mu sync.Mutex
	n  int
}

func (h *hitCounter) handler(status int) echo.HandlerFunc {
	return func(c echo.Context) error {
		h.mu.Lock()
		h.n++
		n := h.n
		h.mu.Unlock()
		return c.JSON(status, map[string]int{"calls": n})
	}
}

func (h *hitCounter) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestResponseCacheHitAndMiss(t *testing.T) {
	store := cache.NewMemoryStore(100)
	var h hitCounter
	e := echo.New()
	e.GET("/events", h.handler(http.StatusOK), ResponseCache(store, time.Minute, PathQueryKey("cache"), 1<<20, zerolog.Nop()))

	first := get(e, "/events?page=1")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get(e, "/events?page=1")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, h.calls())

	other := get(e, "/events?page=2")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"), "query is part of the key")
	assert.Equal(t, 2, h.calls())

	n, err := store.InvalidatePrefix(context.Background(), "cache:/events")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "MISS", get(e, "/events?page=1").Header().Get("X-Cache"))
}

func TestResponseCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(100).WithClock(func() time.Time { return now })
	var h hitCounter
	e := echo.New()
	e.GET("/events", h.handler(http.StatusOK), ResponseCache(store, time.Minute, PathQueryKey("cache"), 1<<20, zerolog.Nop()))

	assert.Equal(t, "MISS", get(e, "/events").Header().Get("X-Cache"))
	now = now.Add(59 * time.Second)
	assert.Equal(t, "HIT", get(e, "/events").Header().Get("X-Cache"))
	assert.Equal(t, 1, h.calls())

	now = now.Add(time.Second)
	rec := get(e, "/events")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, h.calls())
	assert.JSONEq(t, `{"calls":2}`, rec.Body.String())
}

func TestResponseCacheSkips(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		var h hitCounter
		e := echo.New()
		e.GET("/x", h.handler(http.StatusAccepted), ResponseCache(cache.NewMemoryStore(10), time.Minute, PathQueryKey("c"), 0, zerolog.Nop()))
		get(e, "/x")
		assert.Equal(t, "MISS", get(e, "/x").Header().Get("X-Cache"))
		assert.Equal(t, 2, h.calls())
	})

	t.Run("non-GET", func(t *testing.T) {
		var h hitCounter
		e := echo.New()
		e.POST("/x", h.handler(http.StatusOK), ResponseCache(cache.NewMemoryStore(10), time.Minute, PathQueryKey("c"), 0, zerolog.Nop()))
		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
			assert.Empty(t, rec.Header().Get("X-Cache"))
		}
		assert.Equal(t, 2, h.calls())
	})

	t.Run("oversized body", func(t *testing.T) {
		var h hitCounter
		e := echo.New()
		e.GET("/x", h.handler(http.StatusOK), ResponseCache(cache.NewMemoryStore(10), time.Minute, PathQueryKey("c"), 4, zerolog.Nop()))
		get(e, "/x")
		get(e, "/x")
		assert.Equal(t, 2, h.calls())
	})

	t.Run("store errors fail open", func(t *testing.T) {
		var h hitCounter
		e := echo.New()
		e.GET("/x", h.handler(http.StatusOK), ResponseCache(brokenStore{}, time.Minute, PathQueryKey("c"), 0, zerolog.Nop()))
		rec := get(e, "/x")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.calls())
	})
}

func TestUserInterestsKeySeparatesUsers(t *testing.T) {
	store := cache.NewMemoryStore(100)
	var h hitCounter
	e := echo.New()
	e.GET("/events/interests", h.handler(http.StatusOK),
		func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				id := c.Request().Header.Get("X-User")
				c.Set(userKey, &model.User{ID: id, Interests: []string{"sports", "technical"}})
				return next(c)
			}
		},
		ResponseCache(store, time.Minute, UserInterestsKey("cache"), 0, zerolog.Nop()))

	call := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/events/interests", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, "MISS", call("a").Header().Get("X-Cache"))
	assert.Equal(t, "HIT", call("a").Header().Get("X-Cache"))
	assert.Equal(t, "MISS", call("b").Header().Get("X-Cache"))
	assert.Equal(t, 2, h.calls())
}

func TestUserInterestsKeySortsInterests(t *testing.T) {
	e := echo.New()
	key := UserInterestsKey("cache")
	mk := func(interests ...string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/events/interests?page=1", nil), httptest.NewRecorder())
		c.Set(userKey, &model.User{ID: "u1", Interests: interests})
		return key(c)
	}
	assert.Equal(t, mk("sports", "technical"), mk("technical", "sports"))
	assert.Equal(t, "cache:/events/interests?page=1|u=u1|i=sports,technical", mk("technical", "sports"))
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
	_, _, _, ok = decodePayload(append([]byte{0, 0, 0, 200, 0, 0, 0xff, 0xff}, []byte(strconv.Itoa(1))...))
	assert.False(t, ok)
}
