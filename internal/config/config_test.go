package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/config"
)

func baseVars() map[string]string {
	return map[string]string{
		"DATABASE_URL":        "postgres://localhost/kixora",
		"REDIS_URL":           "redis://localhost:6379/0",
		"PAYHERE_MERCHANT_ID": "M1",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseVars())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 10*time.Second, cfg.ScriptTimeout)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, time.Minute, cfg.PayRateWindow)
	require.Equal(t, 10, cfg.PayRateMax)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.True(t, cfg.SecurityHeaders)
	require.False(t, cfg.PayHereSandbox)
}

func TestLoadOverrides(t *testing.T) {
	vars := baseVars()
	vars["PORT"] = "9000"
	vars["PAYHERE_SANDBOX"] = "true"
	vars["PAYMENT_SESSION_TIMEOUT"] = "90s"
	vars["CORS_ALLOWED_ORIGINS"] = "https://shop.example, https://admin.example"
	vars["PAY_RATE_MAX"] = "25"

	cfg, err := config.LoadForTests(vars)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.True(t, cfg.PayHereSandbox)
	require.Equal(t, 90*time.Second, cfg.SessionTimeout)
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 25, cfg.PayRateMax)
}

func TestLoadRequiredVars(t *testing.T) {
	for _, missing := range []string{"DATABASE_URL", "REDIS_URL", "PAYHERE_MERCHANT_ID"} {
		t.Run(missing, func(t *testing.T) {
			vars := baseVars()
			vars[missing] = ""
			_, err := config.LoadForTests(vars)
			require.ErrorContains(t, err, missing)
		})
	}
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	vars := baseVars()
	vars["PAYMENT_SESSION_TIMEOUT"] = "not-a-duration"
	cfg, err := config.LoadForTests(vars)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.SessionTimeout)
}
