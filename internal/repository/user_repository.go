package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/paycore/internal/model"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// DB exposes the handle so services can open transactions spanning repos.
func (r *UserRepo) DB() *sql.DB { return r.db }

const userColumns = `id, email, password_hash, role, referral_code, referred_by, is_blocked,
	reset_token_hash, reset_token_expires_at, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u          model.User
		referredBy sql.NullInt64
		resetHash  sql.NullString
		resetExp   sql.NullTime
		lastLogin  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.ReferralCode, &referredBy, &u.IsBlocked,
		&resetHash, &resetExp, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if referredBy.Valid {
		id := uint64(referredBy.Int64)
		u.ReferredBy = &id
	}
	if resetHash.Valid {
		h := resetHash.String
		u.ResetTokenHash = &h
	}
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetTokenExpiresAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// CreateTx inserts u inside tx and fills in its ID. The email must already
// be normalized. A taken email yields ErrEmailExists; a taken referral
// code yields ErrConflict so the caller can retry with a new code.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, referral_code, referred_by, is_blocked, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		u.Email, u.PasswordHash, u.Role, u.ReferralCode, u.ReferredBy, u.IsBlocked, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			if strings.Contains(err.Error(), "referral_code") {
				return ErrConflict
			}
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByReferralCode fetches the owner of a referral code.
func (r *UserRepo) GetByReferralCode(ctx context.Context, code string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE referral_code=? LIMIT 1", code))
}

// GetByResetTokenHash fetches the user holding an outstanding reset token.
// Expiry is checked by the caller.
func (r *UserRepo) GetByResetTokenHash(ctx context.Context, hash string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? LIMIT 1", hash))
}

// TouchLastLogin records a successful login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

// SetResetToken stores the hash and expiry of a password reset token,
// replacing any earlier one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires_at=?, updated_at=? WHERE id=?",
		hash, exp.UTC(), time.Now().UTC(), id)
	return err
}

// UpdatePassword replaces the password hash and clears any reset token.
// When expectResetHash is non-empty the update only applies while that
// reset token is still stored, which makes a reset token single use under
// concurrency. It returns sql.ErrNoRows when nothing was updated.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash, expectResetHash string) error {
	q := "UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires_at=NULL, updated_at=? WHERE id=?"
	args := []any{hash, time.Now().UTC(), id}
	if expectResetHash != "" {
		q += " AND reset_token_hash=?"
		args = append(args, expectResetHash)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetBlocked blocks or unblocks an account.
func (r *UserRepo) SetBlocked(ctx context.Context, id uint64, blocked bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET is_blocked=?, updated_at=? WHERE id=?", blocked, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
