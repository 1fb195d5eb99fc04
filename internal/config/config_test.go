package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "paycore")
	t.Setenv("DB_NAME", "paycore")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 20, cfg.Payments.CommissionPercent)
	assert.Equal(t, "INR", cfg.Payments.DefaultCurrency)
	assert.Equal(t, 10*time.Second, cfg.Payments.ProviderTimeout)
	assert.Equal(t, "https://api.razorpay.com", cfg.Razorpay.BaseURL)
	assert.Empty(t, cfg.Razorpay.KeyID)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("COMMISSION_PERCENT", "15")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Payments.CommissionPercent)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, "rzp_test", cfg.Razorpay.KeyID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("DB_USER", "paycore")
		t.Setenv("DB_NAME", "paycore")
		t.Setenv("JWT_ACCESS_SECRET", "")
		t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("shared secret", func(t *testing.T) {
		setRequired(t)
		t.Setenv("JWT_REFRESH_SECRET", "access-secret")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("commission out of range", func(t *testing.T) {
		setRequired(t)
		t.Setenv("COMMISSION_PERCENT", "120")
		_, err := Load()
		assert.Error(t, err)
	})
}
