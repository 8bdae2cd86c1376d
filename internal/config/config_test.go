package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"API_ADDR", "DEV_MODE", "POOL_STORE", "ARITHMETIC_MODE", "AMM_PROGRAM_ID", "RECONCILE_INTERVAL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8090", cfg.APIAddr)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "memory", cfg.PoolStore)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)

	pid, err := cfg.Program()
	require.NoError(t, err)
	assert.Equal(t, program.DefaultProgramID, pid)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, amm.ArithmeticWide, mode)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("WHITELIST_ENFORCE", "1")
	t.Setenv("ARITHMETIC_MODE", "strict64")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("RETRY_BACKOFF", "250ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.WhitelistEnforce)
	assert.Equal(t, 0.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, amm.ArithmeticStrict64, mode)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"program id":   func(c *Config) { c.ProgramID = "nope" },
		"arithmetic":   func(c *Config) { c.ArithmeticMode = "float" },
		"log level":    func(c *Config) { c.LogLevel = "loud" },
		"pool store":   func(c *Config) { c.PoolStore = "disk" },
		"redis store":  func(c *Config) { c.PoolStore = "redis"; c.RedisAddr = "" },
		"price impact": func(c *Config) { c.MaxPriceImpactBps = 20000 },
		"interval":     func(c *Config) { c.ReconcileInterval = 0 },
		"flag cache":   func(c *Config) { c.FlagCacheTTL = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Load()
			cfg.ProgramID = program.DefaultProgramID.String()
			cfg.ArithmeticMode = "wide"
			cfg.LogLevel = "info"
			cfg.PoolStore = "memory"
			cfg.ReconcileInterval = time.Minute
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
