package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health reports liveness for load balancers and uptime checks.
type Health struct {
	env     string
	started time.Time
	now     func() time.Time
}

func NewHealth(env string) *Health {
	return &Health{env: env, started: time.Now(), now: time.Now}
}

func (h *Health) Check(c echo.Context) error {
	now := h.now()
	return c.JSON(http.StatusOK, echo.Map{
		"status":      "ok",
		"timestamp":   now.UTC().Format(time.RFC3339),
		"environment": h.env,
		"uptime":      now.Sub(h.started).Seconds(),
	})
}
