package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/handler"
	"github.com/iliyamo/paycore/internal/middleware"
	"github.com/iliyamo/paycore/internal/service"
)

// RegisterAdmin registers account and wallet administration routes under
// /admin. Wallet adjustments are authorized per target in the handler;
// user management needs the CanManageUsers capability.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, w *handler.WalletHandler, v middleware.AccessVerifier, authz service.Authorizer) {
	g := e.Group("/admin", middleware.JWTAuth(v))
	g.POST("/wallets/:userId/credit", w.Credit)
	g.POST("/wallets/:userId/debit", w.Debit)

	users := g.Group("/users", middleware.RequireCapability(authz.CanManageUsers))
	users.POST("/:id/block", a.BlockUser)
	users.POST("/:id/unblock", a.UnblockUser)
}
