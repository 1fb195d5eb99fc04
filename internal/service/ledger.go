package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EntryRef optionally links a ledger entry to the payment or order that
// caused it.
type EntryRef struct {
	PaymentID *uint64
	OrderID   *string
}

// Page selects a slice of a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// History is one page of ledger entries.
type History struct {
	Items  []model.WalletTransaction
	Total  int
	Limit  int
	Offset int
}

// LedgerService moves money in and out of wallets. Every change writes the
// balance and its ledger row in one transaction, so a wallet's balance is
// always the sum of its ledger.
type LedgerService struct {
	wallets *repository.WalletRepo
	log     *slog.Logger
}

func NewLedgerService(wallets *repository.WalletRepo, log *slog.Logger) *LedgerService {
	return &LedgerService{wallets: wallets, log: log}
}

// Credit adds amount to the user's wallet. The returned entry carries the
// balance after the credit.
func (s *LedgerService) Credit(ctx context.Context, userID uint64, amount decimal.Decimal, description string, ref EntryRef) (model.WalletTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return model.WalletTransaction{}, err
	}
	return s.apply(ctx, "service.LedgerService.Credit", model.WalletTransaction{
		UserID:      userID,
		Amount:      amount,
		Description: description,
		PaymentID:   ref.PaymentID,
		OrderID:     ref.OrderID,
	})
}

// Debit takes amount from the user's wallet. Overdraft is never allowed.
// Who may debit is decided by the caller's Authorizer.
func (s *LedgerService) Debit(ctx context.Context, userID uint64, amount decimal.Decimal, description string) (model.WalletTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return model.WalletTransaction{}, err
	}
	return s.apply(ctx, "service.LedgerService.Debit", model.WalletTransaction{
		UserID:      userID,
		Amount:      amount.Neg(),
		Description: description,
	})
}

func (s *LedgerService) apply(ctx context.Context, op string, e model.WalletTransaction) (model.WalletTransaction, error) {
	err := withTx(ctx, s.wallets.DB(), func(tx *sql.Tx) error {
		return s.wallets.ApplyTx(ctx, tx, &e)
	})
	switch {
	case err == nil:
		s.log.Debug("wallet updated", slog.String("op", op), slog.Uint64("user_id", e.UserID),
			slog.String("amount", e.Amount.StringFixed(2)), slog.String("balance", e.BalanceAfter.StringFixed(2)))
		return e, nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		return model.WalletTransaction{}, apperr.ErrInsufficientBalance
	case errors.Is(err, sql.ErrNoRows):
		return model.WalletTransaction{}, apperr.NotFound("wallet not found")
	default:
		return model.WalletTransaction{}, fmt.Errorf("%s: %w", op, err)
	}
}

// GetBalance returns the current balance of a wallet.
func (s *LedgerService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	bal, err := s.wallets.Balance(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, apperr.NotFound("wallet not found")
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("service.LedgerService.GetBalance: %w", err)
	}
	return bal, nil
}

// GetHistory returns ledger entries newest first.
func (s *LedgerService) GetHistory(ctx context.Context, userID uint64, page Page) (History, error) {
	page = page.normalize()
	items, total, err := s.wallets.History(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return History{}, fmt.Errorf("service.LedgerService.GetHistory: %w", err)
	}
	return History{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.BadRequest("amount must be positive").WithCode("INVALID_AMOUNT")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return apperr.BadRequest("amount supports at most 2 decimal places").WithCode("INVALID_AMOUNT")
	}
	return nil
}
