package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "postgres")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret-0123456789abcdef")
	t.Setenv("TWO_FACTOR_TOKEN_SECRET", "twofactor-secret-0123456789abc")
	t.Setenv("EMAIL_TOKEN_SECRET", "email-secret-0123456789abcdefg")
	t.Setenv("PASSWORD_RESET_SECRET", "reset-secret-0123456789abcdefg")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 3*time.Minute, cfg.Auth.TwoFactorTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 5, cfg.Auth.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AttemptWindow)
	assert.True(t, cfg.Auth.ResetAttemptsOnLogin)
	assert.Equal(t, 100, cfg.Quota.MaxRequestsPerDay)
	assert.Equal(t, 3, cfg.Quota.MaxAPIKeysPerUser)
	assert.True(t, cfg.Features.EmailConfirmation)
	assert.True(t, cfg.Features.TwoFactor)
	assert.True(t, cfg.Features.LockoutNotifications)
}

func TestLoad_MissingDatabasePassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()

	assert.ErrorContains(t, err, "DB_PASSWORD")
}

func TestLoad_FeatureFlagsOff(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_EMAIL_CONFIRMATION", "false")
	t.Setenv("ENABLE_TWO_FACTOR", "false")
	t.Setenv("ENABLE_LOCKOUT_NOTIFICATIONS", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.Features.EmailConfirmation)
	assert.False(t, cfg.Features.TwoFactor)
	assert.False(t, cfg.Features.LockoutNotifications)
}

func TestLoad_SharedSecretsRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWO_FACTOR_TOKEN_SECRET", "access-secret-0123456789abcdef")

	_, err := Load()

	assert.ErrorContains(t, err, "must not share the same value")
}

func TestLoad_ShortSecretRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_TOKEN_SECRET", "short")

	_, err := Load()

	assert.ErrorContains(t, err, "EMAIL_TOKEN_SECRET")
}

func TestLoad_ProductionRequiresLongerSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")

	// 30 characters pass in development but not in production.
	_, err := Load()
	require.Error(t, err)

	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret-0123456789abcdef-padding")
	t.Setenv("TWO_FACTOR_TOKEN_SECRET", "twofactor-secret-0123456789abc-padding")
	t.Setenv("EMAIL_TOKEN_SECRET", "email-secret-0123456789abcdefg-padding")
	t.Setenv("PASSWORD_RESET_SECRET", "reset-secret-0123456789abcdefg-padding")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Server.Env)
}

func TestDatabaseConfigDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Name:     "moderation",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=moderation sslmode=disable",
		cfg.DSN())
}
