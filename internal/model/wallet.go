package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the running balance of one user. It is only ever changed
// together with a WalletTransaction row in the same database transaction.
type Wallet struct {
	UserID    uint64          // wallets.user_id
	Balance   decimal.Decimal // wallets.balance
	UpdatedAt time.Time       // wallets.updated_at
}

// WalletTransaction is one immutable ledger entry. Amount is signed:
// credits are positive and debits negative. BalanceAfter snapshots the
// wallet balance right after the entry was applied.
type WalletTransaction struct {
	ID           uint64          // wallet_transactions.id
	UserID       uint64          // wallet_transactions.user_id
	Amount       decimal.Decimal // wallet_transactions.amount
	BalanceAfter decimal.Decimal // wallet_transactions.balance_after
	Description  string          // wallet_transactions.description
	PaymentID    *uint64         // wallet_transactions.payment_id (nullable)
	OrderID      *string         // wallet_transactions.order_id (nullable)
	CreatedAt    time.Time       // wallet_transactions.created_at
}
