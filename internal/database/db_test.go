package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsSkipsComments(t *testing.T) {
	script := `-- header; with a semicolon
CREATE TABLE a (id INT);

-- between
CREATE TABLE b (id INT)
;
`
	stmts := Statements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Equal(t, "CREATE TABLE b (id INT)", stmts[1])
}

func TestEmbeddedSchemaCoversAllTables(t *testing.T) {
	stmts := Statements(schemaSQL)
	tables := []string{"users", "refresh_tokens", "wallets", "courses", "payments", "wallet_transactions", "commissions", "enrollments"}
	require.Len(t, stmts, len(tables))
	for i, table := range tables {
		assert.True(t, strings.HasPrefix(stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" "), "statement %d should create %s", i, table)
	}
}
