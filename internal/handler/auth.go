package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions    *service.SessionService
	Credentials *service.CredentialService
	Log         *slog.Logger
	// ExposeResetToken returns the raw reset token in the forgot-password
	// response. Only for local development, where no mailer is wired.
	ExposeResetToken bool
}

func NewAuthHandler(s *service.SessionService, cr *service.CredentialService, log *slog.Logger, exposeResetToken bool) *AuthHandler {
	return &AuthHandler{Sessions: s, Credentials: cr, Log: log, ExposeResetToken: exposeResetToken}
}

// ----- DTOs -----

type registerReq struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referralCode"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type userPart struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ReferralCode string `json:"referralCode"`
}

type authResp struct {
	User userPart `json:"user"`
	service.TokenPair
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, Role: u.Role, ReferralCode: u.ReferralCode}
}

// Register creates an account. It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Credentials.Register(ctx, req.Email, req.Password, req.ReferralCode)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusCreated, toUserPart(u))
}

// Login handles POST /auth/:role/login; the path role must match the
// account's role.
func (h *AuthHandler) Login(c echo.Context) error {
	role := strings.ToLower(c.Param("role"))
	if !model.ValidRole(role) {
		return badRequest(c, "unknown role")
	}
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, u, err := h.Sessions.Login(ctx, req.Email, req.Password, role)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusOK, authResp{User: toUserPart(u), TokenPair: pair})
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refreshToken required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusOK, pair)
}

// Logout ends the session of the given refresh token. It needs no access
// token and succeeds for unknown tokens.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Sessions.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return fail(c, h.Log, err)
	}
	return okMessage(c, http.StatusOK, "logged out")
}

// LogoutAll ends every session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	n, err := h.Sessions.LogoutAll(ctx, p.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusOK, echo.Map{"sessionsEnded": n})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Credentials.ChangePassword(ctx, p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, h.Log, err)
	}
	return okMessage(c, http.StatusOK, "password changed; please log in again")
}

// ForgotPassword always answers the same way so it cannot be used to find
// out which emails have accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return badRequest(c, "email required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	token, err := h.Credentials.CreateResetToken(ctx, req.Email)
	if err != nil {
		return fail(c, h.Log, err)
	}
	const msg = "if the account exists, a reset link has been sent"
	if h.ExposeResetToken && token != "" {
		return c.JSON(http.StatusOK, envelope{Success: true, Message: msg, Data: echo.Map{"resetToken": token}})
	}
	return okMessage(c, http.StatusOK, msg)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Credentials.ResetPassword(ctx, strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		return fail(c, h.Log, err)
	}
	return okMessage(c, http.StatusOK, "password reset; please log in again")
}
