package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/service"
)

// WalletHandler serves wallet reads to owners and wallet adjustments to
// whoever the Authorizer allows.
type WalletHandler struct {
	Ledger *service.LedgerService
	Authz  service.Authorizer
	Log    *slog.Logger
}

func NewWalletHandler(l *service.LedgerService, authz service.Authorizer, log *slog.Logger) *WalletHandler {
	return &WalletHandler{Ledger: l, Authz: authz, Log: log}
}

type adjustReq struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OrderID     string          `json:"orderId"`
}

type balanceResp struct {
	UserID  uint64          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type entryResp struct {
	ID           uint64          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Description  string          `json:"description"`
	PaymentID    *uint64         `json:"paymentId,omitempty"`
	OrderID      *string         `json:"orderId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type historyResp struct {
	Items  []entryResp `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func toEntryResp(t model.WalletTransaction) entryResp {
	return entryResp{
		ID:           t.ID,
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		PaymentID:    t.PaymentID,
		OrderID:      t.OrderID,
		CreatedAt:    t.CreatedAt,
	}
}

// target resolves ?userId, defaulting to the caller, and checks that the
// caller may view that wallet.
func (h *WalletHandler) target(c echo.Context) (uint64, error) {
	p, err := principal(c)
	if err != nil {
		return 0, err
	}
	id := p.UserID
	if raw := c.QueryParam("userId"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 {
			return 0, apperr.BadRequest("invalid userId")
		}
		id = n
	}
	if !h.Authz.CanViewWallet(p, id) {
		return 0, apperr.Forbidden("forbidden")
	}
	return id, nil
}

// Balance handles GET /wallet.
func (h *WalletHandler) Balance(c echo.Context) error {
	id, err := h.target(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	bal, err := h.Ledger.GetBalance(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusOK, balanceResp{UserID: id, Balance: bal})
}

// History handles GET /wallet/history?limit=&offset=.
func (h *WalletHandler) History(c echo.Context) error {
	id, err := h.target(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	ctx, cancel := withTimeout(c)
	defer cancel()

	hist, err := h.Ledger.GetHistory(ctx, id, service.Page{Limit: limit, Offset: offset})
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := historyResp{Items: make([]entryResp, 0, len(hist.Items)), Total: hist.Total, Limit: hist.Limit, Offset: hist.Offset}
	for _, t := range hist.Items {
		out.Items = append(out.Items, toEntryResp(t))
	}
	return ok(c, http.StatusOK, out)
}

// Credit handles POST /admin/wallets/:userId/credit.
func (h *WalletHandler) Credit(c echo.Context) error {
	return h.adjust(c, true)
}

// Debit handles POST /admin/wallets/:userId/debit.
func (h *WalletHandler) Debit(c echo.Context) error {
	return h.adjust(c, false)
}

func (h *WalletHandler) adjust(c echo.Context, credit bool) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	userID, valid := paramID(c, "userId")
	if !valid {
		return badRequest(c, "invalid userId")
	}
	allowed := h.Authz.CanDebit(p, userID)
	if credit {
		allowed = h.Authz.CanCredit(p, userID)
	}
	if !allowed {
		return fail(c, h.Log, apperr.Forbidden("forbidden"))
	}
	var req adjustReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "manual adjustment by admin"
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	var entry model.WalletTransaction
	if credit {
		var ref service.EntryRef
		if o := strings.TrimSpace(req.OrderID); o != "" {
			ref.OrderID = &o
		}
		entry, err = h.Ledger.Credit(ctx, userID, req.Amount, desc, ref)
	} else {
		entry, err = h.Ledger.Debit(ctx, userID, req.Amount, desc)
	}
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.Log.Info("wallet adjusted", slog.Uint64("actor_id", p.UserID), slog.Uint64("user_id", userID),
		slog.String("amount", entry.Amount.StringFixed(2)))
	return ok(c, http.StatusOK, toEntryResp(entry))
}
