package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/service"
)

// AdminHandler holds account administration endpoints. Routes are gated
// with the CanManageUsers capability.
type AdminHandler struct {
	Credentials *service.CredentialService
	Log         *slog.Logger
}

func NewAdminHandler(cr *service.CredentialService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{Credentials: cr, Log: log}
}

// BlockUser handles POST /admin/users/:id/block. It also ends the user's
// sessions.
func (h *AdminHandler) BlockUser(c echo.Context) error {
	return h.setBlocked(c, true)
}

// UnblockUser handles POST /admin/users/:id/unblock.
func (h *AdminHandler) UnblockUser(c echo.Context) error {
	return h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c echo.Context, blocked bool) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid user id")
	}
	if blocked && id == p.UserID {
		return badRequest(c, "cannot block yourself")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Credentials.SetBlocked(ctx, id, blocked); err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("user block state changed", slog.Uint64("actor_id", p.UserID), slog.Uint64("user_id", id), slog.Bool("blocked", blocked))
	return ok(c, http.StatusOK, echo.Map{"userId": id, "blocked": blocked})
}
