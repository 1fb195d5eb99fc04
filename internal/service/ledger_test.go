package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/testutil"
)

func TestCreditSignupBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)

	entry, err := f.ledger.Credit(ctx, uid, decimal.NewFromInt(500), "signup bonus", EntryRef{})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(500)))

	bal, err := f.ledger.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(500)))

	h, err := f.ledger.GetHistory(ctx, uid, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, h.Total)
	assert.True(t, h.Items[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "signup bonus", h.Items[0].Description)
}

func TestConcurrentCreditsKeepLedgerInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)
	_, err := f.ledger.Credit(ctx, uid, decimal.NewFromInt(100), "opening", EntryRef{})
	require.NoError(t, err)

	const n = 25
	a := decimal.RequireFromString("10.25")
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%d", i)
			_, err := f.ledger.Credit(ctx, uid, a, "burst", EntryRef{OrderID: &orderID})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	want := decimal.NewFromInt(100).Add(a.Mul(decimal.NewFromInt(n)))
	bal, err := f.ledger.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.True(t, bal.Equal(want), "balance %s, want %s", bal, want)
	assert.True(t, testutil.LedgerSum(t, f.db, uid).Equal(bal))
	assert.Equal(t, n+1, testutil.Count(t, f.db, "wallet_transactions", "user_id = ?", uid))
}

func TestDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)
	_, err := f.ledger.Credit(ctx, uid, decimal.NewFromInt(50), "top up", EntryRef{})
	require.NoError(t, err)

	_, err = f.ledger.Debit(ctx, uid, decimal.RequireFromString("50.01"), "too much")
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Equal(t, 1, testutil.Count(t, f.db, "wallet_transactions", "user_id = ?", uid))

	entry, err := f.ledger.Debit(ctx, uid, decimal.NewFromInt(50), "all of it")
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(-50)))
	assert.True(t, entry.BalanceAfter.IsZero())
	assert.True(t, testutil.LedgerSum(t, f.db, uid).IsZero())
}

func TestLedgerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)

	for _, amt := range []string{"0", "-5", "1.005"} {
		_, err := f.ledger.Credit(ctx, uid, decimal.RequireFromString(amt), "x", EntryRef{})
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err), amt)
		_, err = f.ledger.Debit(ctx, uid, decimal.RequireFromString(amt), "x")
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err), amt)
	}
	_, err := f.ledger.Credit(ctx, uid, decimal.RequireFromString("1.50"), "trailing zero is fine", EntryRef{})
	assert.NoError(t, err)

	_, err = f.ledger.Credit(ctx, 9999, decimal.NewFromInt(1), "x", EntryRef{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.ledger.GetBalance(ctx, 9999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetHistoryPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)
	for i := 1; i <= 25; i++ {
		_, err := f.ledger.Credit(ctx, uid, decimal.NewFromInt(int64(i)), fmt.Sprintf("credit %d", i), EntryRef{})
		require.NoError(t, err)
	}

	h, err := f.ledger.GetHistory(ctx, uid, Page{})
	require.NoError(t, err)
	assert.Equal(t, 25, h.Total)
	assert.Equal(t, 20, h.Limit)
	require.Len(t, h.Items, 20)
	assert.Equal(t, "credit 25", h.Items[0].Description)

	h, err = f.ledger.GetHistory(ctx, uid, Page{Limit: 20, Offset: 20})
	require.NoError(t, err)
	require.Len(t, h.Items, 5)
	assert.Equal(t, "credit 1", h.Items[4].Description)

	h, err = f.ledger.GetHistory(ctx, uid, Page{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 100, h.Limit)
	assert.Equal(t, 0, h.Offset)
}

func TestRoleAuthorizer(t *testing.T) {
	var a Authorizer = RoleAuthorizer{}
	admin := Principal{UserID: 1, Role: model.RoleAdmin}
	sub := Principal{UserID: 2, Role: model.RoleSubadmin}
	user := Principal{UserID: 3, Role: model.RoleUser}

	assert.True(t, a.CanCredit(admin, 3))
	assert.True(t, a.CanDebit(admin, 3))
	assert.False(t, a.CanCredit(sub, 3))
	assert.False(t, a.CanDebit(user, 3))

	assert.True(t, a.CanViewWallet(user, 3))
	assert.False(t, a.CanViewWallet(user, 2))
	assert.True(t, a.CanViewWallet(admin, 2))

	assert.True(t, a.CanManageUsers(admin))
	assert.False(t, a.CanManageUsers(sub))
}
