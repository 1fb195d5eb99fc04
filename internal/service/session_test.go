package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/testutil"
	"github.com/iliyamo/paycore/internal/utils"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)

	pair, u, err := f.sessions.Login(ctx, " Ann@Example.com ", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, 1, testutil.Count(t, f.db, "refresh_tokens", "user_id = ?", uid))

	stored, err := f.users.GetByID(ctx, uid)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	// only the keyed hash is stored
	assert.Equal(t, 0, testutil.Count(t, f.db, "refresh_tokens", "token_hash = ?", pair.RefreshToken))
	assert.Equal(t, 1, testutil.Count(t, f.db, "refresh_tokens", "token_hash = ?", utils.HashToken("refresh-secret", pair.RefreshToken)))

	_, _, wrongPw := f.sessions.Login(ctx, "ann@example.com", "nope-nope", "")
	_, _, unknown := f.sessions.Login(ctx, "ghost@example.com", "password1", "")
	assert.ErrorIs(t, wrongPw, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, apperr.ErrInvalidCredentials)
	assert.Equal(t, wrongPw.Error(), unknown.Error())

	_, _, err = f.sessions.Login(ctx, "ann@example.com", "password1", model.RoleAdmin)
	assert.ErrorIs(t, err, apperr.ErrRoleMismatch)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, f.users.SetBlocked(ctx, uid, true))
	_, _, err = f.sessions.Login(ctx, "ann@example.com", "password1", "")
	assert.ErrorIs(t, err, apperr.ErrAccountBlocked)
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)

	first, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", model.RoleUser)
	require.NoError(t, err)

	second, err := f.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// the redeemed token is dead, its replacement is not
	_, err = f.sessions.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	third, err := f.sessions.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	fourth, err := f.sessions.Refresh(ctx, third.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, third.RefreshToken, fourth.RefreshToken)
	assert.Equal(t, 1, testutil.Count(t, f.db, "refresh_tokens", ""))
}

func TestRefreshConcurrentRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)
	pair, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)

	const racers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []TokenPair
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.sessions.Refresh(ctx, pair.RefreshToken)
			if err != nil {
				assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
				return
			}
			mu.Lock()
			wins = append(wins, p)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, wins, 1)

	_, err = f.sessions.Refresh(ctx, wins[0].RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)
	pair, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})
	t.Run("expired row is deleted", func(t *testing.T) {
		tok, err := utils.IssueToken("refresh-secret", utils.TokenTypeRefresh, uid, "ann@example.com", model.RoleUser, time.Hour)
		require.NoError(t, err)
		hash := utils.HashToken("refresh-secret", tok.Token)
		require.NoError(t, f.tokens.StoreRefresh(ctx, uid, hash, time.Now().Add(-time.Minute)))

		_, err = f.sessions.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
		assert.Equal(t, 0, testutil.Count(t, f.db, "refresh_tokens", "token_hash = ?", hash))
	})
	t.Run("blocked user", func(t *testing.T) {
		require.NoError(t, f.users.SetBlocked(ctx, uid, true))
		_, err := f.sessions.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrAccountBlocked)
	})
}

func TestLogoutAndLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "ann@example.com", "password1", model.RoleUser)

	a, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)
	b, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)
	c, _, err := f.sessions.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)

	require.NoError(t, f.sessions.Logout(ctx, a.RefreshToken))
	require.NoError(t, f.sessions.Logout(ctx, a.RefreshToken))
	_, err = f.sessions.Refresh(ctx, a.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(f.sessions.Logout(ctx, " ")))

	n, err := f.sessions.LogoutAll(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	for _, p := range []TokenPair{b, c} {
		_, err := f.sessions.Refresh(ctx, p.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	}
}

func TestVerifyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := testutil.SeedUser(t, f.db, "root@example.com", "password1", model.RoleAdmin)
	pair, _, err := f.sessions.Login(ctx, "root@example.com", "password1", model.RoleAdmin)
	require.NoError(t, err)

	p, err := f.sessions.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: uid, Email: "root@example.com", Role: model.RoleAdmin}, p)

	_, err = f.sessions.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	expired, err := utils.IssueToken("access-secret", utils.TokenTypeAccess, uid, "root@example.com", model.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = f.sessions.VerifyAccess(expired.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}
