package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port         string
	AllowOrigins string
	LogLevel     string
	TZDefault    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GatewayBaseURL   string
	GatewaySecretKey string
	WebhookSecret    string
	CallbackURL      string

	SchedulerEnabled  bool
	IntervalMinutes   int
	BatchSize         int
	MaxRetries        int
	RetryDelayMinutes int
	SweepCronSpec     string

	ReqTimeoutSec  int
	RateLimitRPS   float64
	RateLimitBurst int

	WebhookRateLimit    int
	WebhookRateWindowMs int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func atof(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func atob(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func Load() *Config {
	return &Config{
		Port:         getenv("PORT", "8080"),
		AllowOrigins: getenv("ALLOW_ORIGINS", "*"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		TZDefault:    getenv("TZ_DEFAULT", "UTC"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", ""),
		DBName:     getenv("DB_NAME", "billing"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		GatewayBaseURL:   getenv("GATEWAY_BASE_URL", "https://api.flutterwave.com/v3"),
		GatewaySecretKey: getenv("GATEWAY_SECRET_KEY", ""),
		WebhookSecret:    getenv("WEBHOOK_SECRET", ""),
		CallbackURL:      getenv("CALLBACK_URL", ""),

		SchedulerEnabled:  atob("SCHEDULER_ENABLED", true),
		IntervalMinutes:   atoi("SCHEDULER_INTERVAL_MINUTES", 60),
		BatchSize:         atoi("SCHEDULER_BATCH_SIZE", 100),
		MaxRetries:        atoi("SCHEDULER_MAX_RETRIES", 3),
		RetryDelayMinutes: atoi("SCHEDULER_RETRY_DELAY_MINUTES", 5),
		SweepCronSpec:     getenv("SWEEP_CRON_SPEC", "15 0 * * *"),

		ReqTimeoutSec:  atoi("REQUEST_TIMEOUT_SECONDS", 30),
		RateLimitRPS:   atof("RATE_LIMIT_RPS", 5),
		RateLimitBurst: atoi("RATE_LIMIT_BURST", 10),

		WebhookRateLimit:    atoi("WEBHOOK_RATE_LIMIT", 60),
		WebhookRateWindowMs: atoi("WEBHOOK_RATE_WINDOW_MS", 60000),
	}
}
