package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TopUpMode controls how a CREDIT transaction affects a wallet account.
const (
	TopUpModeRaiseLimit     = "raise_limit"
	TopUpModeReduceConsumed = "reduce_consumed"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

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

	RedisAddr     string
	RedisPassword string

	WalletTopUpMode  string
	WalletLockTTL    time.Duration
	WalletMaxRetries int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "opdwallet"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      getenv("ENVIRONMENT", "development"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:           getenv("DATABASE_TYPE", "postgres"),
		DBHost:           getenv("DATABASE_HOST", "localhost"),
		DBPort:           getenv("DATABASE_PORT", "5432"),
		DBName:           getenv("DATABASE_NAME", "opdwallet"),
		DBUser:           getenv("DATABASE_USER", "postgres"),
		DBPassword:       getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:        getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:    getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:    getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		RedisAddr:        strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		WalletTopUpMode:  normalizeTopUpMode(getenv("WALLET_TOPUP_MODE", TopUpModeRaiseLimit)),
		WalletLockTTL:    getenvDuration("WALLET_LOCK_TTL", 3*time.Second),
		WalletMaxRetries: getenvInt("WALLET_MAX_RETRIES", 5),
	}

	return cfg
}

func normalizeTopUpMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TopUpModeReduceConsumed:
		return TopUpModeReduceConsumed
	default:
		return TopUpModeRaiseLimit
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
