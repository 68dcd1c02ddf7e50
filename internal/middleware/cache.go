package middleware

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/cache"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	size     int64
	limit    int64
	overflow bool
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.size += int64(len(b))
	if cw.limit > 0 && cw.size > cw.limit {
		cw.overflow = true
	}
	if !cw.overflow {
		cw.buf.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

// KeyFunc derives the cache key of a request.
type KeyFunc func(c echo.Context) string

// PathQueryKey keys on prefix, path and raw query: "<prefix>:<path>?<query>".
func PathQueryKey(prefix string) KeyFunc {
	return func(c echo.Context) string {
		u := c.Request().URL
		return prefix + ":" + u.Path + "?" + u.RawQuery
	}
}

// UserInterestsKey extends PathQueryKey with the caller's id and sorted
// interests, so personalized listings are never shared between users.
func UserInterestsKey(prefix string) KeyFunc {
	base := PathQueryKey(prefix)
	return func(c echo.Context) string {
		key := base(c)
		u, ok := CurrentUser(c)
		if !ok {
			return key
		}
		interests := append([]string(nil), u.Interests...)
		sort.Strings(interests)
		return key + "|u=" + u.ID + "|i=" + strings.Join(interests, ",")
	}
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// headers that belong to one response only and are never replayed
var perRequestHeaders = map[string]bool{
	"Content-Length":        true,
	"X-Cache":               true,
	"X-Request-Id":          true,
	"X-Ratelimit-Limit":     true,
	"X-Ratelimit-Remaining": true,
	"Set-Cookie":            true,
}

func snapshotHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vals := range h {
		if perRequestHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// ResponseCache serves GET responses from store. Only 200 responses are
// stored, bodies larger than maxBody are not, and every store error
// falls through to the handler.
func ResponseCache(store cache.Store, ttl time.Duration, key KeyFunc, maxBody int, logger zerolog.Logger) echo.MiddlewareFunc {
	if store == nil || ttl <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log := logger.With().Str("component", "response-cache").Logger()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			k := key(c)

			bs, hit, err := store.Get(ctx, k)
			if err != nil {
				log.Warn().Err(err).Str("key", k).Msg("cache get failed")
			}
			if hit {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for name, vals := range hdr {
						c.Response().Header()[name] = vals
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(maxBody)}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.overflow {
				return nil
			}
			payload, err := encodePayload(cw.status, snapshotHeader(c.Response().Header()), cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := store.Set(context.WithoutCancel(ctx), k, payload, ttl); err != nil {
				log.Warn().Err(err).Str("key", k).Msg("cache set failed")
			}
			return nil
		}
	}
}
