package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Xendit    XenditConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Firebase  FirebaseConfig
	Log       LogConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig: an empty Addr keeps counters and cache in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type PaymentConfig struct {
	Currency      string
	InvoiceExpiry time.Duration
	// Provider selects the invoice gateway: "xendit" or "stub".
	Provider           string
	SuccessRedirectURL string
	FailureRedirectURL string
}

type XenditConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type WebhookConfig struct {
	CallbackToken   string
	TokenHeader     string
	SignatureHeader string
	MaxFailures     int
	FailureWindow   time.Duration
	ReplayWindow    time.Duration
}

type RateLimitConfig struct {
	PublicLimit   int
	PublicWindow  time.Duration
	WebhookLimit  int
	WebhookWindow time.Duration
	LoginPerMin   float64
	LoginBurst    int
	ClassCacheTTL time.Duration
}

type SchedulerConfig struct {
	Enabled        bool
	ReconcileSpec  string
	ReconcileBatch int
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type LogConfig struct {
	Level string
}

type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Load reads .env when present, then the process environment, falling back to defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 20*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "eduhub:eduhub@tcp(localhost:3306)/eduhub?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "eduhub:"),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			Issuer:        getEnv("JWT_ISSUER", "eduhub"),
		},
		Payment: PaymentConfig{
			Currency:           getEnv("PAYMENT_CURRENCY", "IDR"),
			InvoiceExpiry:      getEnvDuration("PAYMENT_INVOICE_EXPIRY", 24*time.Hour),
			Provider:           getEnv("PAYMENT_PROVIDER", "stub"),
			SuccessRedirectURL: getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/payments/success"),
			FailureRedirectURL: getEnv("PAYMENT_FAILURE_URL", "http://localhost:3000/payments/failed"),
		},
		Xendit: XenditConfig{
			BaseURL:   getEnv("XENDIT_BASE_URL", "https://api.xendit.co"),
			SecretKey: getEnv("XENDIT_SECRET_KEY", ""),
			Timeout:   getEnvDuration("XENDIT_TIMEOUT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			CallbackToken:   getEnv("XENDIT_CALLBACK_TOKEN", ""),
			TokenHeader:     getEnv("WEBHOOK_TOKEN_HEADER", "X-Callback-Token"),
			SignatureHeader: getEnv("WEBHOOK_SIGNATURE_HEADER", "X-Callback-Signature"),
			MaxFailures:     getEnvInt("WEBHOOK_MAX_FAILURES", 10),
			FailureWindow:   getEnvDuration("WEBHOOK_FAILURE_WINDOW", 5*time.Minute),
			ReplayWindow:    getEnvDuration("WEBHOOK_REPLAY_WINDOW", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PublicLimit:   getEnvInt("RATE_LIMIT_PUBLIC", 100),
			PublicWindow:  getEnvDuration("RATE_LIMIT_PUBLIC_WINDOW", time.Minute),
			WebhookLimit:  getEnvInt("RATE_LIMIT_WEBHOOK", 300),
			WebhookWindow: getEnvDuration("RATE_LIMIT_WEBHOOK_WINDOW", time.Minute),
			LoginPerMin:   float64(getEnvInt("RATE_LIMIT_LOGIN_PER_MIN", 10)),
			LoginBurst:    getEnvInt("RATE_LIMIT_LOGIN_BURST", 5),
			ClassCacheTTL: getEnvDuration("CLASS_CACHE_TTL", 60*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getEnv("SCHEDULER_ENABLED", "true") == "true",
			ReconcileSpec:  getEnv("SCHEDULER_RECONCILE_SPEC", "@every 10m"),
			ReconcileBatch: getEnvInt("SCHEDULER_RECONCILE_BATCH", 50),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Seed: SeedConfig{
			AdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@eduhub.local"),
			AdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
