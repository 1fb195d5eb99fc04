package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/handler"
	"github.com/iliyamo/paycore/internal/middleware"
)

// RegisterPayments registers the buyer-facing payment and wallet routes.
// All of them require an access token; per-wallet access is checked in
// the handler because it depends on the target user.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, w *handler.WalletHandler, v middleware.AccessVerifier) {
	pay := e.Group("/payments", middleware.JWTAuth(v))
	pay.POST("/order", p.CreateOrder)
	pay.POST("/verify", p.Verify)

	wallet := e.Group("/wallet", middleware.JWTAuth(v))
	wallet.GET("", w.Balance)
	wallet.GET("/history", w.History)
}
