package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists refresh tokens by hash. A row is one live session;
// redeeming or revoking a token deletes its row.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, exp.UTC(), time.Now().UTC())
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// Consume deletes the row for tokenHash and returns its owner and expiry.
// The delete is checked by rows affected, so when two callers race on the
// same token exactly one of them gets the row; the other sees
// sql.ErrNoRows. Expired rows are consumed too; the caller decides what an
// expired token means.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string) (userID uint64, expiresAt time.Time, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, time.Time{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	if err != nil {
		return 0, time.Time{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n != 1 {
		return 0, time.Time{}, sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return 0, time.Time{}, err
	}
	committed = true
	return userID, expiresAt, nil
}

// RevokeByHash deletes a token. Deleting an unknown token is not an error.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	return err
}

// RevokeAllForUser deletes every token of a user and reports how many
// sessions were ended.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired purges rows that expired before now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
