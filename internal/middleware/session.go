package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/repository"
	"github.com/iliyamo/campus-events/internal/utils"
)

// Cookie names used for the session tokens.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

const userKey = "user"

// UserLoader is the subset of the user store needed to resolve a session.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Session authenticates every request it wraps. The access token comes from
// the accessToken cookie or, failing that, an Authorization: Bearer header.
// The user is reloaded on each request so deleted accounts lose access
// immediately.
func Session(issuer *utils.TokenIssuer, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return apperr.Unauthorized("unauthorized request")
			}
			claims, err := issuer.VerifyAccess(raw)
			if err != nil {
				return apperr.Unauthorized("invalid access token")
			}
			u, err := users.GetByID(c.Request().Context(), claims.Subject)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.Unauthorized("invalid access token")
			}
			if err != nil {
				return apperr.Internal("could not load session", err)
			}
			pub := u.Public()
			c.Set(userKey, &pub)
			return next(c)
		}
	}
}

func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}
