package config

import (
	"testing"

	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendbook")
	t.Setenv("AUTH0_DOMAIN", "lendbook.eu.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "https://api.lendbook.app")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int32(2), cfg.CurrencyScale)
	assert.Equal(t, domain.OverduePolicyFixed, cfg.OverduePeriodPolicy)
	assert.Equal(t, "@daily", cfg.AccrualSchedule)
	assert.True(t, cfg.AccrualEnabled)
	assert.Equal(t, 30, cfg.PaymentRateLimit)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CURRENCY_SCALE", "0")
	t.Setenv("OVERDUE_PERIOD_POLICY", "calendar")
	t.Setenv("ACCRUAL_ENABLED", "false")
	t.Setenv("PAYMENT_RATE_LIMIT", "5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int32(0), cfg.CurrencyScale)
	assert.Equal(t, domain.OverduePolicyCalendar, cfg.OverduePeriodPolicy)
	assert.False(t, cfg.AccrualEnabled)
	assert.Equal(t, 5, cfg.PaymentRateLimit)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"missing database url", "DATABASE_URL", ""},
		{"non numeric scale", "CURRENCY_SCALE", "two"},
		{"scale out of range", "CURRENCY_SCALE", "9"},
		{"unknown policy", "OVERDUE_PERIOD_POLICY", "lunar"},
		{"bad bool", "ACCRUAL_ENABLED", "sometimes"},
		{"zero rate limit", "PAYMENT_RATE_LIMIT", "-1"},
		{"smtp without sender", "SMTP_HOST", "smtp.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
