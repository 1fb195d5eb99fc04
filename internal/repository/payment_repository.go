package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/paycore/internal/model"
)

// PaymentRepo provides access to the payments table. Status changes go
// through guarded updates (WHERE status='PENDING') so a payment can only
// leave PENDING once, whatever the number of concurrent verifiers.
type PaymentRepo struct{ db *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// DB exposes the handle so services can open transactions.
func (r *PaymentRepo) DB() *sql.DB { return r.db }

const paymentColumns = `id, user_id, course_id, amount, currency, provider, provider_order_id,
	provider_payment_id, status, settled_at, created_at, updated_at`

func scanPayment(row rowScanner) (model.Payment, error) {
	var (
		p         model.Payment
		courseID  sql.NullInt64
		orderID   sql.NullString
		paymentID sql.NullString
		settledAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &courseID, &p.Amount, &p.Currency, &p.Provider, &orderID,
		&paymentID, &p.Status, &settledAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, err
	}
	if courseID.Valid {
		id := uint64(courseID.Int64)
		p.CourseID = &id
	}
	if orderID.Valid {
		s := orderID.String
		p.ProviderOrderID = &s
	}
	if paymentID.Valid {
		s := paymentID.String
		p.ProviderPaymentID = &s
	}
	if settledAt.Valid {
		t := settledAt.Time
		p.SettledAt = &t
	}
	return p, nil
}

// Create inserts a PENDING payment and fills in its ID and timestamps.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	now := time.Now().UTC()
	p.Status = model.PaymentPending
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (user_id, course_id, amount, currency, provider, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		p.UserID, p.CourseID, p.Amount, p.Currency, p.Provider, p.Status, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// SetProviderOrderID records the provider's order or session id. A
// provider order id already bound to another payment yields ErrConflict.
func (r *PaymentRepo) SetProviderOrderID(ctx context.Context, id uint64, orderID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE payments SET provider_order_id=?, updated_at=? WHERE id=? AND status='PENDING'",
		orderID, time.Now().UTC(), id)
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// GetByID fetches a payment.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id=? LIMIT 1", id))
}

// MarkSucceeded moves a PENDING payment to SUCCESS. It reports false when
// the payment was not PENDING, meaning another caller already decided it.
func (r *PaymentRepo) MarkSucceeded(ctx context.Context, id uint64, providerPaymentID string) (bool, error) {
	return r.transition(ctx, id, model.PaymentSuccess, &providerPaymentID)
}

// MarkFailed moves a PENDING payment to FAILED. It reports false when the
// payment was not PENDING.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id uint64) (bool, error) {
	return r.transition(ctx, id, model.PaymentFailed, nil)
}

func (r *PaymentRepo) transition(ctx context.Context, id uint64, to model.PaymentStatus, providerPaymentID *string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status=?, provider_payment_id=COALESCE(?, provider_payment_id), updated_at=?
		 WHERE id=? AND status='PENDING'`,
		to, providerPaymentID, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimSettlementTx stamps settled_at on a SUCCESS payment that has not been
// settled yet. Exactly one transaction can win the claim; the others get
// false and must not settle.
func (r *PaymentRepo) ClaimSettlementTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE payments SET settled_at=?, updated_at=? WHERE id=? AND status='SUCCESS' AND settled_at IS NULL",
		now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListStalePending returns PENDING payments created before cutoff that have
// a provider order id, oldest first.
func (r *PaymentRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+` FROM payments
		 WHERE status='PENDING' AND provider_order_id IS NOT NULL AND created_at <= ?
		 ORDER BY created_at, id LIMIT ?`,
		cutoff.UTC(), limit)
}

// ListUnsettled returns SUCCESS payments whose settlement never completed.
func (r *PaymentRepo) ListUnsettled(ctx context.Context, limit int) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+` FROM payments
		 WHERE status='SUCCESS' AND settled_at IS NULL
		 ORDER BY updated_at, id LIMIT ?`,
		limit)
}

func (r *PaymentRepo) list(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
