package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/service"
)

// RequireCapability rejects requests whose principal fails allow. It must
// run after JWTAuth. Use it for capabilities that do not depend on the
// request target; target-specific checks belong in the handler.
func RequireCapability(allow func(service.Principal) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			}
			if !allow(p) {
				return deny(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
			}
			return next(c)
		}
	}
}
