package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/service"
)

// AccessVerifier checks an access token without touching storage.
// *service.SessionService implements it.
type AccessVerifier interface {
	VerifyAccess(raw string) (service.Principal, error)
}

// JWTAuth validates a Bearer access token and stores the caller's
// Principal in the context. Handlers read it with PrincipalFrom.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			}
			p, err := v.VerifyAccess(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				return deny(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// deny writes the standard error envelope.
func deny(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "message": msg, "code": code})
}
