package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/service"
)

type verifierFunc func(raw string) (service.Principal, error)

func (f verifierFunc) VerifyAccess(raw string) (service.Principal, error) { return f(raw) }

func newServer() *echo.Echo {
	v := verifierFunc(func(raw string) (service.Principal, error) {
		switch raw {
		case "admin-token":
			return service.Principal{UserID: 1, Role: model.RoleAdmin}, nil
		case "user-token":
			return service.Principal{UserID: 2, Role: model.RoleUser}, nil
		}
		return service.Principal{}, errors.New("bad token")
	})
	e := echo.New()
	g := e.Group("", JWTAuth(v))
	g.GET("/me", func(c echo.Context) error {
		p, _ := PrincipalFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"id": p.UserID, "role": p.Role, "bareKeys": c.Get("user_id") != nil || c.Get("role") != nil})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RequireCapability(service.RoleAuthorizer{}.CanManageUsers))
	return e
}

func do(e *echo.Echo, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newServer()

	rec := do(e, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"missing bearer token","code":"UNAUTHORIZED"}`, rec.Body.String())

	rec = do(e, "/me", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")

	rec = do(e, "/me", "Bearer user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":2,"role":"user","bareKeys":false}`, rec.Body.String())
}

func TestRequireCapability(t *testing.T) {
	e := newServer()
	assert.Equal(t, http.StatusForbidden, do(e, "/admin", "Bearer user-token").Code)
	assert.Equal(t, http.StatusNoContent, do(e, "/admin", "Bearer admin-token").Code)
}
