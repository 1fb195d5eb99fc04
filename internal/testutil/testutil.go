// Package testutil opens throwaway SQLite databases with the paycore schema
// and seeds the rows tests need.
package testutil

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/paycore/internal/database"
)

//go:embed schema_sqlite.sql
var schemaSQL string

// OpenDB creates a SQLite database in the test's temp dir with the schema
// applied. SQLite allows one writer, so the pool is limited to a single
// connection; concurrent callers queue on it like they would on a row lock.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paycore.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range database.Statements(schemaSQL) {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "schema statement failed: %s", stmt)
	}
	return db
}

// SeedUser inserts a user with a zero wallet and returns its id. The
// password is hashed with the minimum bcrypt cost to keep tests fast.
func SeedUser(t *testing.T, db *sql.DB, email, password, role string) uint64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO users (email, password_hash, role, referral_code, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		email, string(hash), role, "REF-"+email, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO wallets (user_id, balance, updated_at) VALUES (?,?,?)`, id, decimal.Zero, now)
	require.NoError(t, err)
	return uint64(id)
}

// SeedCourse inserts a course. subadminID may be nil for courses without a
// commission beneficiary.
func SeedCourse(t *testing.T, db *sql.DB, title string, price decimal.Decimal, subadminID *uint64) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO courses (title, price, subadmin_id) VALUES (?,?,?)`, title, price, subadminID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// Count returns SELECT COUNT(*) for the given table and optional filter.
func Count(t *testing.T, db *sql.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), q, args...).Scan(&n))
	return n
}

// LedgerSum returns the sum of all ledger entries of a user.
func LedgerSum(t *testing.T, db *sql.DB, userID uint64) decimal.Decimal {
	t.Helper()
	var sum decimal.Decimal
	require.NoError(t, db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE user_id = ?`, userID).Scan(&sum))
	return sum
}
