package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("WEBHOOK_HMAC_KEY", "hook")
	t.Setenv("STORE_BACKEND", "memory")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.FXQuoteTTL)
	assert.Equal(t, 24*time.Hour, cfg.FXQuoteRetention)
	assert.Equal(t, time.Duration(0), cfg.PaymentHoldTTL)
	assert.Equal(t, "*/5 * * * *", cfg.JanitorSchedule)
	assert.Nil(t, cfg.FXRates)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoadPrefixedAliases(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TRADE_FX_QUOTE_TTL", "90s")
	t.Setenv("TRADE_FX_RATES", "eur=0.9, GBP=0.8")
	t.Setenv("PAYMENT_HOLD_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.FXQuoteTTL)
	assert.Equal(t, 30*time.Minute, cfg.PaymentHoldTTL)
	require.Len(t, cfg.FXRates, 3)
	assert.True(t, decimal.RequireFromString("0.9").Equal(cfg.FXRates["EUR"]))
	assert.True(t, decimal.NewFromInt(1).Equal(cfg.FXRates["USD"]))
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"short jwt secret":  {"JWT_SECRET": "short"},
		"unknown backend":   {"STORE_BACKEND": "sqlite"},
		"bad duration":      {"FX_QUOTE_TTL": "soon"},
		"zero quote ttl":    {"FX_QUOTE_TTL": "0s"},
		"bad cron":          {"JANITOR_SCHEDULE": "whenever"},
		"bad rates":         {"FX_RATES": "EUR"},
		"missing hmac key":  {"WEBHOOK_HMAC_KEY": ""},
		"negative hold ttl": {"PAYMENT_HOLD_TTL": "-1m"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseRates(t *testing.T) {
	rates, err := ParseRates("")
	require.NoError(t, err)
	assert.Nil(t, rates)

	_, err = ParseRates("USD=2")
	require.Error(t, err)
	_, err = ParseRates("EUR=-1")
	require.Error(t, err)
	_, err = ParseRates("EURO=1")
	require.Error(t, err)

	rates, err = ParseRates("CNY=7.2")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.2").Equal(rates["CNY"]))
}
