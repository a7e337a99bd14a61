package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	UploadDir   string

	LedgerRPCURL          string
	LedgerChainID         string
	LedgerContractAddress string
	LedgerSignerSeedHex   string
	LedgerTimeoutSeconds  int
	LedgerConfirmPollMs   int
	LedgerAllowReanchor   bool

	AuthMode        string
	AdminAPIKey     string
	LogisticsAPIKey string

	PolicyBundlePath string

	RateLimitRequests      int
	RateLimitWindowSeconds int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		UploadDir:              envDefault("UPLOAD_DIR", "uploads"),
		LedgerRPCURL:           os.Getenv("LEDGER_RPC_URL"),
		LedgerChainID:          envDefault("LEDGER_CHAIN_ID", "31337"),
		LedgerContractAddress:  os.Getenv("LEDGER_CONTRACT_ADDRESS"),
		LedgerSignerSeedHex:    os.Getenv("LEDGER_SIGNER_SEED_HEX"),
		LedgerTimeoutSeconds:   envIntDefault("LEDGER_TIMEOUT_SECONDS", 10),
		LedgerConfirmPollMs:    envIntDefault("LEDGER_CONFIRM_POLL_MILLIS", 250),
		LedgerAllowReanchor:    envBool("LEDGER_ALLOW_REANCHOR"),
		AuthMode:               envDefault("AUTH_MODE", "key"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		LogisticsAPIKey:        os.Getenv("LOGISTICS_API_KEY"),
		PolicyBundlePath:       os.Getenv("POLICY_BUNDLE_PATH"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func (c Config) LedgerTimeout() time.Duration {
	secs := c.LedgerTimeoutSeconds
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

func (c Config) LedgerConfirmPoll() time.Duration {
	ms := c.LedgerConfirmPollMs
	if ms <= 0 {
		ms = 250
	}
	return time.Duration(ms) * time.Millisecond
}

func envDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return value
}
