package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	AppURL      string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment provider secrets
	SquareWebhookSignatureKey string
	StripeWebhookSecret       string
	PayPalWebhookID           string
	CashAppWebhookSecret      string

	// ManualProviderTokenHash is the bcrypt hash of the token presented by
	// trusted callers of the direct purchase endpoint.
	ManualProviderTokenHash string

	// Fee schedule
	PlatformFeeBps   int64 // basis points of gross, e.g. 100 = 1%
	FlatFeePerTicket int64 // minor units added per issued ticket
	DefaultCurrency  string

	// Intent configuration
	IntentExpiry       time.Duration
	IssuanceLockExpiry time.Duration

	// Ledger retry configuration
	LedgerRetryAttempts int
	LedgerRetryBase     time.Duration

	// Notification configuration
	NotificationQueueSize int
	EmailDedupeTTL        time.Duration

	// Admin
	AdminEmails []string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AppURL:      getEnv("APP_URL", "https://stepperslife.com"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Providers
		SquareWebhookSignatureKey: getEnv("SQUARE_WEBHOOK_SIGNATURE_KEY", ""),
		StripeWebhookSecret:       getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PayPalWebhookID:           getEnv("PAYPAL_WEBHOOK_ID", ""),
		CashAppWebhookSecret:      getEnv("CASHAPP_WEBHOOK_SECRET", ""),
		ManualProviderTokenHash:   getEnv("MANUAL_PROVIDER_TOKEN_HASH", ""),

		// Fees
		PlatformFeeBps:   int64(getEnvAsInt("PLATFORM_FEE_BPS", 100)),
		FlatFeePerTicket: int64(getEnvAsInt("FLAT_FEE_PER_TICKET", 0)),
		DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "USD"),

		// Intents
		IntentExpiry:       getEnvAsDuration("INTENT_EXPIRY", "30m"),
		IssuanceLockExpiry: getEnvAsDuration("ISSUANCE_LOCK_EXPIRY", "30s"),

		// Ledger retries
		LedgerRetryAttempts: getEnvAsInt("LEDGER_RETRY_ATTEMPTS", 5),
		LedgerRetryBase:     getEnvAsDuration("LEDGER_RETRY_BASE", "100ms"),

		// Notifications
		NotificationQueueSize: getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 256),
		EmailDedupeTTL:        getEnvAsDuration("EMAIL_DEDUPE_TTL", "24h"),

		// Admin
		AdminEmails: getEnvAsSlice("ADMIN_EMAILS", nil),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
