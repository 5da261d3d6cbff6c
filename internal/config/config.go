package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lendbook/lendbook-backend/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain   string
	Auth0Audience string

	// Server
	Port        string
	CORSOrigins []string
	Env         string
	PublicURL   string

	// Lending
	CurrencyScale       int32
	OverduePeriodPolicy domain.OverduePeriodPolicy
	AccrualSchedule     string
	AccrualEnabled      bool
	PaymentRateLimit    int

	// Optional integrations
	SMTP      SMTPConfig
	RedisAddr string
}

// SMTPConfig holds outgoing mail configuration. Mail is disabled when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	scale, err := getEnvInt("CURRENCY_SCALE", 2)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("PAYMENT_RATE_LIMIT", 30)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	accrualEnabled, err := getEnvBool("ACCRUAL_ENABLED", true)
	if err != nil {
		return nil, err
	}
	policy, err := domain.ParseOverduePeriodPolicy(getEnv("OVERDUE_PERIOD_POLICY", string(domain.OverduePolicyFixed)))
	if err != nil {
		return nil, fmt.Errorf("OVERDUE_PERIOD_POLICY: %w", err)
	}

	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		Auth0Domain:         getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:       getEnv("AUTH0_AUDIENCE", ""),
		Port:                getEnv("PORT", "8080"),
		CORSOrigins:         strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:                 getEnv("ENV", "development"),
		PublicURL:           getEnv("PUBLIC_URL", ""),
		CurrencyScale:       int32(scale),
		OverduePeriodPolicy: policy,
		AccrualSchedule:     getEnv("ACCRUAL_SCHEDULE", "@daily"),
		AccrualEnabled:      accrualEnabled,
		PaymentRateLimit:    rateLimit,
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     smtpPort,
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		RedisAddr: getEnv("REDIS_ADDR", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.CurrencyScale < 0 || c.CurrencyScale > 6 {
		return fmt.Errorf("CURRENCY_SCALE must be between 0 and 6")
	}
	if c.PaymentRateLimit <= 0 {
		return fmt.Errorf("PAYMENT_RATE_LIMIT must be positive")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
