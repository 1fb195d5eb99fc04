package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/model"
)

// WalletRepo owns the wallets and wallet_transactions tables. Balances
// only change through ApplyTx, which writes the balance and the ledger row
// in the caller's transaction.
type WalletRepo struct{ db *sql.DB }

func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// DB exposes the handle so services can open transactions.
func (r *WalletRepo) DB() *sql.DB { return r.db }

// CreateTx opens a zero-balance wallet for a new user.
func (r *WalletRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO wallets (user_id, balance, updated_at) VALUES (?,?,?)",
		userID, decimal.Zero, time.Now().UTC())
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// EnsureTx opens a zero-balance wallet for userID unless one exists.
// Accounts provisioned outside registration (subadmins, admins) may have
// no wallet until they are first credited.
func (r *WalletRepo) EnsureTx(ctx context.Context, tx *sql.Tx, userID uint64) error {
	_, err := r.balance(ctx, tx, userID)
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err := r.CreateTx(ctx, tx, userID); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

// ApplyTx adds e.Amount (signed) to the wallet of e.UserID and appends e
// to the ledger, filling in e.ID, e.BalanceAfter and e.CreatedAt.
//
// The balance changes through a single UPDATE ... SET balance = balance ± ?
// so the row lock taken by that statement serializes concurrent writers;
// amounts are cast so the arithmetic stays in DECIMAL rather than DOUBLE;
// the balance read that follows sees this transaction's own write. Debits
// are guarded with balance >= amount and fail with ErrInsufficientFunds.
func (r *WalletRepo) ApplyTx(ctx context.Context, tx *sql.Tx, e *model.WalletTransaction) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if e.Amount.IsNegative() {
		abs := e.Amount.Neg()
		res, err = tx.ExecContext(ctx,
			"UPDATE wallets SET balance = balance - CAST(? AS DECIMAL(14,2)), updated_at = ? WHERE user_id = ? AND balance >= CAST(? AS DECIMAL(14,2))",
			abs, now, e.UserID, abs)
	} else {
		res, err = tx.ExecContext(ctx,
			"UPDATE wallets SET balance = balance + CAST(? AS DECIMAL(14,2)), updated_at = ? WHERE user_id = ?",
			e.Amount, now, e.UserID)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the wallet is missing or the debit guard rejected it.
		if _, err := r.balance(ctx, tx, e.UserID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}

	bal, err := r.balance(ctx, tx, e.UserID)
	if err != nil {
		return err
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (user_id, amount, balance_after, description, payment_id, order_id, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		e.UserID, e.Amount, bal, e.Description, e.PaymentID, e.OrderID, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.BalanceAfter = bal
	e.CreatedAt = now
	return nil
}

func (r *WalletRepo) balance(ctx context.Context, q execer, userID uint64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := q.QueryRowContext(ctx, "SELECT balance FROM wallets WHERE user_id = ?", userID).Scan(&bal)
	return bal, err
}

// Balance returns the current balance. A missing wallet is sql.ErrNoRows.
func (r *WalletRepo) Balance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	return r.balance(ctx, r.db, userID)
}

// History returns one page of ledger entries, newest first, plus the total
// number of entries of the user.
func (r *WalletRepo) History(ctx context.Context, userID uint64, limit, offset int) ([]model.WalletTransaction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM wallet_transactions WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, balance_after, description, payment_id, order_id, created_at
		 FROM wallet_transactions WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []model.WalletTransaction{}
	for rows.Next() {
		var (
			t         model.WalletTransaction
			paymentID sql.NullInt64
			orderID   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &t.Description, &paymentID, &orderID, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		if paymentID.Valid {
			id := uint64(paymentID.Int64)
			t.PaymentID = &id
		}
		if orderID.Valid {
			o := orderID.String
			t.OrderID = &o
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
