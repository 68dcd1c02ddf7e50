package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-events/internal/model"
)

// CurrentUser returns the user attached by Session.
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(userKey).(*model.User)
	return u, ok && u != nil
}

// userID returns the authenticated user's id, or "anon".
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok && u.ID != "" {
		return u.ID
	}
	return "anon"
}
