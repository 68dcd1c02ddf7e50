package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves /auth/me for the current access token and rotates
// old -> new on the refresh endpoint.
type fakeAPI struct {
	refreshCalls atomic.Int32
	refreshOK    bool
	refreshDelay time.Duration

	mu     sync.Mutex
	access string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, msg string, data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "message": msg, "data": data})
	}
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+f.access
		f.mu.Unlock()
		if !valid {
			write(w, http.StatusUnauthorized, "invalid access token", nil)
			return
		}
		write(w, http.StatusOK, "ok", map[string]string{"id": "u1", "username": "alice"})
	})
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !f.refreshOK || body.RefreshToken != "refresh-1" {
			write(w, http.StatusUnauthorized, "refresh token is expired or used", nil)
			return
		}
		f.mu.Lock()
		f.access = "access-2"
		f.mu.Unlock()
		write(w, http.StatusOK, "access token refreshed", map[string]string{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
		})
	})
	return mux
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api := &fakeAPI{refreshOK: true, refreshDelay: 100 * time.Millisecond, access: "access-2"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := New(srv.URL, WithTokens("access-1", "refresh-1"))

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := c.Me(context.Background())
			errs[i] = err
			if err == nil {
				assert.Equal(t, "alice", u.Username)
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	access, refresh := c.Tokens()
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-2", refresh)
}

func TestRefreshFailureIsPropagatedToAllWaiters(t *testing.T) {
	api := &fakeAPI{refreshOK: false, refreshDelay: 100 * time.Millisecond, access: "access-2"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := New(srv.URL, WithTokens("access-1", "refresh-1"))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	access, refresh := c.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(1), api.refreshCalls.Load(), "a dead session is not refreshed again")
}

func TestRefreshEndpointDoesNotRecurse(t *testing.T) {
	api := &fakeAPI{refreshOK: false}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := New(srv.URL, WithTokens("access-1", "refresh-1"))
	err := c.Do(context.Background(), http.MethodPost, RefreshPath, map[string]string{"refreshToken": "x"}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestRetryHappensOnce(t *testing.T) {
	var meCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"message":"invalid access token","data":null}`))
	})
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"message":"ok","data":{"accessToken":"a2","refreshToken":"r2"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, WithTokens("a1", "r1"))
	_, err := c.Me(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(2), meCalls.Load(), "original request plus one retry")
}
