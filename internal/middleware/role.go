package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-events/internal/apperr"
)

// RequireRole must run after Session. It rejects users whose role is not
// in roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("unauthorized request")
			}
			if !allowed[u.Role] {
				return apperr.Forbidden("you do not have permission to perform this action")
			}
			return next(c)
		}
	}
}
