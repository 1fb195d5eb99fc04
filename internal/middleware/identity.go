package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/service"
)

const principalKey = "principal"

// PrincipalFrom returns the caller stored by JWTAuth.
func PrincipalFrom(c echo.Context) (service.Principal, bool) {
	p, ok := c.Get(principalKey).(service.Principal)
	return p, ok
}
