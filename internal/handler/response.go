package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/middleware"
	"github.com/iliyamo/paycore/internal/service"
)

// requestTimeout bounds the work a handler does on behalf of one request.
// Provider calls carry their own, shorter timeout.
const requestTimeout = 15 * time.Second

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func okMessage(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: true, Message: msg})
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err. Typed errors show their message and code; anything
// else is logged and rendered as a generic 500.
func fail(c echo.Context, log *slog.Logger, err error) error {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		if e.Kind == apperr.KindUnavailable {
			log.Warn("dependency unavailable", slog.String("path", c.Path()), slog.Any("err", err))
		}
		return c.JSON(statusOf(e.Kind), envelope{Message: e.Message, Code: e.Code})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("request timed out", slog.String("path", c.Path()), slog.Any("err", err))
		return c.JSON(http.StatusServiceUnavailable, envelope{Message: "request timed out", Code: apperr.KindUnavailable.String()})
	}
	log.Error("request failed", slog.String("path", c.Path()), slog.Any("err", err))
	return c.JSON(http.StatusInternalServerError, envelope{Message: "internal error", Code: apperr.KindInternal.String()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, envelope{Message: msg, Code: apperr.KindBadRequest.String()})
}

// principal returns the authenticated caller; routes using it sit behind
// JWTAuth, so a missing principal is a wiring error.
func principal(c echo.Context) (service.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return service.Principal{}, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// ErrorHandler renders echo's own errors (unknown route, bad method, body
// too large) in the standard envelope.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				msg = m
			}
			_ = c.JSON(he.Code, envelope{Message: msg, Code: http.StatusText(he.Code)})
			return
		}
		_ = fail(c, log, err)
	}
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
