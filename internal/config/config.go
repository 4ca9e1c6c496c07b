package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	PayHereMerchantID string
	PayHereScriptURL  string
	PayHereSandbox    bool
	ReturnURL         string
	CancelURL         string
	NotifyURL         string
	SignerURL         string

	// SessionTimeout is the window a checkout session may stay open before
	// the bridge synthesises a timeout outcome.
	SessionTimeout time.Duration
	// ScriptTimeout bounds the vendor script fetch.
	ScriptTimeout time.Duration

	IdempotencyTTL  time.Duration
	PayRateWindow   time.Duration
	PayRateMax      int
	MaxBodyBytes    int64
	SecurityHeaders bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PayHereMerchantID: strings.TrimSpace(k.String("PAYHERE_MERCHANT_ID")),
		PayHereScriptURL:  strings.TrimSpace(k.String("PAYHERE_SCRIPT_URL")),
		PayHereSandbox:    parseBool(k.String("PAYHERE_SANDBOX")),
		ReturnURL:         strings.TrimSpace(k.String("PAYMENT_RETURN_URL")),
		CancelURL:         strings.TrimSpace(k.String("PAYMENT_CANCEL_URL")),
		NotifyURL:         strings.TrimSpace(k.String("PAYMENT_NOTIFY_URL")),
		SignerURL:         strings.TrimSpace(k.String("SIGNER_URL")),

		SessionTimeout: parseDuration(k.String("PAYMENT_SESSION_TIMEOUT"), "5m"),
		ScriptTimeout:  parseDuration(k.String("PAYHERE_SCRIPT_TIMEOUT"), "10s"),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		PayRateWindow:   parseDuration(k.String("PAY_RATE_WINDOW"), "1m"),
		PayRateMax:      parseInt(k.String("PAY_RATE_MAX"), 10),
		MaxBodyBytes:    int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders: parseBoolDefault(k.String("SECURITY_HEADERS"), true),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PayHereMerchantID == "" {
		return nil, errors.New("PAYHERE_MERCHANT_ID is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of one Load.
func LoadForTests(vars map[string]string) (*Config, error) {
	original := make(map[string]string, len(vars))
	for key, value := range vars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	for key, value := range original {
		_ = setEnvVar(key, value)
	}
	return cfg, err
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}
