package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/model"
)

func TestLocalTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	mw := NewTokenBucket(cfg, nil, zerolog.Nop())
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e := echo.New()

	call := func(remote string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		return rec, h(e.NewContext(req, rec))
	}

	for i := 0; i < 2; i++ {
		rec, err := call("192.0.2.1:1000")
		require.NoError(t, err)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec, err := call("192.0.2.1:1000")
	assert.ErrorIs(t, err, apperr.ErrTooManyRequests)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	_, err = call("192.0.2.2:1000")
	assert.NoError(t, err, "buckets are per key")
}

func TestTokenBucketDisabled(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, zerolog.Nop())
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e := echo.New()
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, h(e.NewContext(req, httptest.NewRecorder())))
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	cfg.KeyStrategy = "ip_route"
	assert.Equal(t, "rl:ip:198.51.100.7:route:POST /api/v1/auth/login", buildRateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
	c.Set(userKey, &model.User{ID: "u9"})
	assert.Equal(t, "rl:user:u9", buildRateKey(cfg, c))
}
