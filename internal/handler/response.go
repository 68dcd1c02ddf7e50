package handler // package handler holds the HTTP handlers of the API

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/apperr"
)

// Response is the envelope of every API response.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Response{Status: status, Message: message, Data: data})
}

// ErrorHandler renders errors in the response envelope. apperr messages
// are shown to the client; wrapped causes of 5xx errors are only logged.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	log := logger.With().Str("component", "http").Logger()
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := http.StatusInternalServerError, "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			ae := apperr.From(err)
			status, message = ae.Kind.Status(), ae.Message
		}

		if status >= http.StatusInternalServerError {
			log.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = respond(c, status, message, nil)
		}
		if err != nil {
			log.Warn().Err(err).Msg("write error response")
		}
	}
}
