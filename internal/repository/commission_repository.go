package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/paycore/internal/model"
)

// CommissionRepo writes commission rows. The unique key on payment_id is
// the last line of defence against paying a commission twice.
type CommissionRepo struct{ db *sql.DB }

func NewCommissionRepo(db *sql.DB) *CommissionRepo { return &CommissionRepo{db: db} }

// CreateTx inserts c unless a commission for c.PaymentID already exists.
// It reports whether a row was created.
func (r *CommissionRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.Commission) (bool, error) {
	existing, err := r.byPayment(ctx, tx, c.PaymentID)
	if err == nil {
		*c = existing
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO commissions (beneficiary_id, payment_id, amount, percentage, created_at) VALUES (?,?,?,?,?)",
		c.BeneficiaryID, c.PaymentID, c.Amount, c.Percentage, now)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	c.ID = uint64(id)
	c.CreatedAt = now
	return true, nil
}

func (r *CommissionRepo) byPayment(ctx context.Context, tx *sql.Tx, paymentID uint64) (model.Commission, error) {
	var c model.Commission
	err := tx.QueryRowContext(ctx,
		"SELECT id, beneficiary_id, payment_id, amount, percentage, created_at FROM commissions WHERE payment_id=? LIMIT 1",
		paymentID).Scan(&c.ID, &c.BeneficiaryID, &c.PaymentID, &c.Amount, &c.Percentage, &c.CreatedAt)
	return c, err
}
