package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/handler"
	"github.com/iliyamo/paycore/internal/middleware"
	"github.com/iliyamo/paycore/internal/service"
)

// Deps are the handlers and access checks the routes are built from.
type Deps struct {
	Auth     *handler.AuthHandler
	Payments *handler.PaymentHandler
	Wallets  *handler.WalletHandler
	Admin    *handler.AdminHandler
	Health   *handler.HealthHandler
	Verifier middleware.AccessVerifier
	Authz    service.Authorizer
}

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)
	RegisterAuth(e, d.Auth, d.Verifier)
	RegisterPayments(e, d.Payments, d.Wallets, d.Verifier)
	RegisterAdmin(e, d.Admin, d.Wallets, d.Verifier, d.Authz)
}

// RegisterAuth registers authentication routes. Register, login, refresh,
// logout and the password reset pair need no access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.AccessVerifier) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/:role/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	authed := g.Group("", middleware.JWTAuth(v))
	authed.POST("/logout-all", a.LogoutAll)
	authed.POST("/change-password", a.ChangePassword)
}
