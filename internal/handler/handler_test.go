package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-events/internal/apperr"
)

func TestErrorHandlerEnvelope(t *testing.T) {
	var logs bytes.Buffer
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.New(&logs))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"app error", apperr.Forbidden("not yours"), http.StatusForbidden, "not yours"},
		{"conflict", apperr.Conflict("user already exists"), http.StatusConflict, "user already exists"},
		{"internal hides cause", apperr.Internal("could not load event", errors.New("dial tcp: refused")), http.StatusInternalServerError, "could not load event"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, "method not allowed"},
		{"too many", apperr.TooManyRequests("rate limit exceeded"), http.StatusTooManyRequests, "rate limit exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), rec)
			e.HTTPErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Nil(t, got.Data)
			assert.NotContains(t, rec.Body.String(), "refused")
		})
	}
	assert.Contains(t, logs.String(), "dial tcp: refused", "internal causes are logged")
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"missing", &registerReq{Email: "a@b.co", Password: "secret1", Fullname: "A", Interests: []string{"x"}}, "username is required"},
		{"email", &registerReq{Username: "a", Email: "nope", Password: "secret1", Fullname: "A", Interests: []string{"x"}}, "email must be a valid email"},
		{"password", &registerReq{Username: "a", Email: "a@b.co", Password: "123", Fullname: "A", Interests: []string{"x"}}, "password must be at least 6 characters"},
		{"interests", &interestsReq{Interests: []string{}}, "interests must have at least 1 item(s)"},
		{"role", &roleReq{Role: "root"}, "role must be one of student, admin, superadmin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrBadRequest)
			assert.Equal(t, tt.want, apperr.From(err).Message)
		})
	}
	assert.NoError(t, v.Validate(&roleReq{Role: "admin"}))
}

func TestSessionCookieAttributes(t *testing.T) {
	exp := time.Now().Add(time.Hour)

	dev := NewAuthHandler(nil, false).cookie("accessToken", "tok", exp)
	assert.True(t, dev.HttpOnly)
	assert.False(t, dev.Secure)
	assert.Equal(t, http.SameSiteLaxMode, dev.SameSite)

	prod := NewAuthHandler(nil, true).cookie("accessToken", "tok", exp)
	assert.True(t, prod.HttpOnly)
	assert.True(t, prod.Secure)
	assert.Equal(t, http.SameSiteNoneMode, prod.SameSite)
}
