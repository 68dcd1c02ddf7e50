// Package client is a Go client for the campus events API. It keeps the
// caller's token pair and transparently refreshes it: when requests fail
// with 401, exactly one refresh call is made for all of them, and each
// retries once with the new access token or returns the refresh error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/campus-events/internal/model"
)

// RefreshPath is the token rotation endpoint. Requests to it never trigger
// a refresh themselves.
const RefreshPath = "/api/v1/auth/refresh-token"

// ErrNoSession is returned when a refresh is needed but no refresh token is held.
var ErrNoSession = errors.New("client: no session")

// APIError is a non-2xx response decoded from the response envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger

	mu      sync.RWMutex
	access  string
	refresh string

	flight singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithLogger(l zerolog.Logger) Option    { return func(c *Client) { c.log = l } }

// WithTokens starts the client with an existing session.
func WithTokens(access, refresh string) Option {
	return func(c *Client) { c.access, c.refresh = access, refresh }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "api-client").Logger()
	return c
}

// Tokens returns the current access and refresh tokens.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access, c.refresh
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.access, c.refresh = access, refresh
	c.mu.Unlock()
}

// Do sends a JSON request and decodes the envelope's data into out (which
// may be nil). A 401 triggers one shared refresh and a single retry.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	used, _ := c.Tokens()
	env, err := c.send(ctx, method, path, payload, used)
	if err != nil {
		return err
	}
	if env.Status == http.StatusUnauthorized && path != RefreshPath {
		if err := c.refreshAfter(ctx, used); err != nil {
			return err
		}
		fresh, _ := c.Tokens()
		if env, err = c.send(ctx, method, path, payload, fresh); err != nil {
			return err
		}
	}
	return decode(env, out)
}

// Refresh rotates the token pair once. Concurrent callers share one call.
func (c *Client) Refresh(ctx context.Context) error {
	used, _ := c.Tokens()
	return c.refreshAfter(ctx, used)
}

// refreshAfter makes sure the access token is newer than used. If another
// request already rotated it there is nothing to do; otherwise the caller
// joins the in-flight refresh or starts one.
func (c *Client) refreshAfter(ctx context.Context, used string) error {
	access, refresh := c.Tokens()
	if access != used && access != "" {
		return nil
	}
	if refresh == "" {
		return ErrNoSession
	}
	ch := c.flight.DoChan("refresh", func() (interface{}, error) {
		// one caller giving up must not fail the others
		return nil, c.rotate(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) rotate(ctx context.Context) error {
	_, refresh := c.Tokens()
	payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return err
	}
	env, err := c.send(ctx, http.MethodPost, RefreshPath, payload, "")
	if err != nil {
		return err
	}
	var sess sessionData
	if err := decode(env, &sess); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.setTokens("", "")
			c.log.Info().Msg("session expired")
		}
		return err
	}
	c.setTokens(sess.AccessToken, sess.RefreshToken)
	c.log.Debug().Msg("tokens refreshed")
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, access string) (*envelope, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	env := &envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	env.Status = resp.StatusCode
	return env, nil
}

func decode(env *envelope, out interface{}) error {
	if env.Status >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(env.Status)
		}
		return &APIError{Status: env.Status, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type sessionData struct {
	User         model.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

// ----- API -----

// Login signs in with a username or email and keeps the returned tokens.
func (c *Client) Login(ctx context.Context, identifier, password string) (*model.User, error) {
	body := map[string]string{"password": password}
	if strings.Contains(identifier, "@") {
		body["email"] = identifier
	} else {
		body["username"] = identifier
	}
	var sess sessionData
	if err := c.Do(ctx, http.MethodPost, "/api/v1/auth/login", body, &sess); err != nil {
		return nil, err
	}
	c.setTokens(sess.AccessToken, sess.RefreshToken)
	return &sess.User, nil
}

// Logout ends the session on the server and forgets the tokens.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	c.setTokens("", "")
	return err
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.Do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListEvents(ctx context.Context, page, limit int) (*model.EventPage, error) {
	return c.listEvents(ctx, "/api/v1/events", page, limit)
}

func (c *Client) ListEventsByInterests(ctx context.Context, page, limit int) (*model.EventPage, error) {
	return c.listEvents(ctx, "/api/v1/events/interests", page, limit)
}

func (c *Client) listEvents(ctx context.Context, path string, page, limit int) (*model.EventPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var p model.EventPage
	if err := c.Do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	if err := c.Do(ctx, http.MethodGet, "/api/v1/events/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
