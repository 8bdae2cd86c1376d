package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
)

type Config struct {
	// API settings
	APIAddr        string
	APIKey         string
	DevMode        bool
	LogLevel       string
	RateLimitRPS   float64
	RateLimitBurst int

	// Redis settings. An empty address runs without Redis.
	RedisAddr string
	RedisDB   int
	// PoolStore is "memory" or "redis".
	PoolStore string

	// ClickHouse settings. An empty address disables the event history sink.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Program and pools
	ProgramID      string
	PoolConfigPath string

	// Engine and policy
	ArithmeticMode    string
	WhitelistEnforce  bool
	MaxPriceImpactBps int
	FlagCacheTTL      time.Duration // 0 reads kill switches from Redis on every operation

	// RPC settings
	RPCUrl            string
	HTTPTimeout       time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	ReconcileInterval time.Duration
}

func Load() *Config {
	return &Config{
		// API
		APIAddr:        getEnv("API_ADDR", ":8090"),
		APIKey:         getEnv("API_KEY", ""),
		DevMode:        getBoolEnv("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 10),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getIntEnv("REDIS_DB", 0),
		PoolStore: getEnv("POOL_STORE", "memory"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "amm"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// Program
		ProgramID:      getEnv("AMM_PROGRAM_ID", program.DefaultProgramID.String()),
		PoolConfigPath: getEnv("POOL_CONFIG_PATH", ""),

		// Engine
		ArithmeticMode:    getEnv("ARITHMETIC_MODE", "wide"),
		WhitelistEnforce:  getBoolEnv("WHITELIST_ENFORCE", false),
		MaxPriceImpactBps: getIntEnv("MAX_PRICE_IMPACT_BPS", 0),

		// RPC
		RPCUrl:            getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		HTTPTimeout:       getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:        getIntEnv("MAX_RETRIES", 5),
		RetryBackoff:      getDurationEnv("RETRY_BACKOFF", 2*time.Second),
		ReconcileInterval: getDurationEnv("RECONCILE_INTERVAL", time.Minute),
		FlagCacheTTL:      getDurationEnv("FLAG_CACHE_TTL", 2*time.Second),
	}
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if _, err := c.Program(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.PoolStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("POOL_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("invalid POOL_STORE %q: want memory or redis", c.PoolStore)
	}
	if c.MaxPriceImpactBps < 0 || c.MaxPriceImpactBps > 10000 {
		return fmt.Errorf("MAX_PRICE_IMPACT_BPS must be within 0..10000")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.FlagCacheTTL < 0 {
		return fmt.Errorf("FLAG_CACHE_TTL must not be negative")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

// Program parses AMM_PROGRAM_ID.
func (c *Config) Program() (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(c.ProgramID)
	if err != nil {
		return pk, fmt.Errorf("invalid AMM_PROGRAM_ID: %w", err)
	}
	return pk, nil
}

// Mode parses ARITHMETIC_MODE.
func (c *Config) Mode() (amm.ArithmeticMode, error) {
	return amm.ParseArithmeticMode(c.ArithmeticMode)
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// NewLogger builds the text logger the binaries share.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if lvl, err := c.Level(); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
