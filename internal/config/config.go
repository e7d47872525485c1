package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Reconcile ReconcileConfig
	Billing   BillingConfig
	Views     ViewsConfig
}

// ReconcileConfig controls the reconciliation engine loop.
type ReconcileConfig struct {
	RunInterval    time.Duration
	BatchSize      int
	Workers        int
	AdapterTimeout time.Duration

	// Optional cross-replica run lock. Empty addr disables it.
	LockRedisAddr     string
	LockRedisPassword string
	LockRedisDB       int
	LockTTL           time.Duration
}

// BillingConfig configures the Stripe-backed billing ledger adapter.
type BillingConfig struct {
	StripeSecretKey string
	Currency        string
}

// ViewsConfig configures the view-count source adapter.
type ViewsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "viewdeal"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "viewdeal"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Reconcile: ReconcileConfig{
			RunInterval:       getenvDuration("RECONCILE_RUN_INTERVAL", 5*time.Minute),
			BatchSize:         getenvInt("RECONCILE_BATCH_SIZE", 50),
			Workers:           getenvInt("RECONCILE_WORKERS", 4),
			AdapterTimeout:    getenvDuration("RECONCILE_ADAPTER_TIMEOUT", 10*time.Second),
			LockRedisAddr:     strings.TrimSpace(getenv("RECONCILE_LOCK_REDIS_ADDR", "")),
			LockRedisPassword: strings.TrimSpace(getenv("RECONCILE_LOCK_REDIS_PASSWORD", "")),
			LockRedisDB:       getenvInt("RECONCILE_LOCK_REDIS_DB", 0),
			LockTTL:           getenvDuration("RECONCILE_LOCK_TTL", 4*time.Minute),
		},
		Billing: BillingConfig{
			StripeSecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			Currency:        strings.ToLower(getenv("BILLING_CURRENCY", "usd")),
		},
		Views: ViewsConfig{
			BaseURL: strings.TrimRight(getenv("VIEWS_API_BASE_URL", "http://localhost:9090"), "/"),
			APIKey:  strings.TrimSpace(getenv("VIEWS_API_KEY", "")),
			Timeout: getenvDuration("VIEWS_API_TIMEOUT", 10*time.Second),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
