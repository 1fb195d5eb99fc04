// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers to distinguish
// between different failure scenarios without inspecting driver errors.
// Missing rows are reported as sql.ErrNoRows, as database/sql does.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a write violates a uniqueness rule or a
// guarded state transition did not match the current state.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by UserRepo when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrInsufficientFunds is returned when a debit would take a wallet below
// zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// isDuplicateKey reports whether err is a unique key violation. MySQL
// reports error 1062; the SQLite driver used in tests reports a UNIQUE
// constraint failure.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "UNIQUE constraint failed")
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
