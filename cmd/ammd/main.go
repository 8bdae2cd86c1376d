package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/cache"
	"github.com/aman-zulfiqar/token2022-amm/internal/config"
	"github.com/aman-zulfiqar/token2022-amm/internal/flags"
	"github.com/aman-zulfiqar/token2022-amm/internal/hook"
	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
	"github.com/aman-zulfiqar/token2022-amm/internal/reconcile"
	"github.com/aman-zulfiqar/token2022-amm/internal/registry"
	"github.com/aman-zulfiqar/token2022-amm/internal/server"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main runs the pool service behind the HTTP API
func main() {
	bootLogger := logrus.New()
	loadEnv(bootLogger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		bootLogger.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.NewLogger()

	programID, _ := cfg.Program()
	mode, _ := cfg.Mode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Redis backs pool records (optional), event fan-out, whitelists and flags
	var rclient *redis.Client
	if cfg.RedisAddr != "" {
		rclient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := rclient.Ping(ctx).Err(); err != nil {
			if cfg.PoolStore == "redis" {
				logger.WithError(err).Fatal("failed to connect to Redis")
			}
			logger.WithError(err).Warn("redis unavailable, running in memory")
			_ = rclient.Close()
			rclient = nil
		} else {
			defer rclient.Close()
		}
	}

	var store storage.PoolStore = storage.NewMemoryStore()
	var sinks []storage.EventSink
	var flagStore *flags.Store
	var members hook.Members = hook.NewMemoryMembers()

	if rclient != nil {
		if cfg.PoolStore == "redis" {
			rs, err := cache.NewRedisPoolStore(rclient, logger)
			if err != nil {
				logger.WithError(err).Fatal("failed to create pool store")
			}
			store = rs
		}
		sinks = append(sinks, cache.NewPubSubManager(rclient, logger))

		fs, err := flags.NewStore(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create flags store")
		}
		flagStore = fs

		rm, err := hook.NewRedisMembers(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create whitelist store")
		}
		members = rm
	}
	defer store.Close()

	// ClickHouse keeps the full event history (optional)
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Warn("event history disabled")
		} else {
			defer ch.Close()
			sinks = append(sinks, ch)
		}
	}

	led := ledger.New(ledger.Config{Logger: logger})
	whitelist := hook.NewWhitelist(hook.WhitelistConfig{
		Members: members,
		Enforce: cfg.WhitelistEnforce,
		Logger:  logger,
	})

	svcCfg := service.Config{
		Engine:            amm.NewEngine(amm.EngineConfig{Mode: mode, Logger: logger}),
		Ledger:            led,
		Store:             store,
		Sinks:             sinks,
		Whitelist:         whitelist,
		ProgramID:         programID,
		MaxPriceImpactBps: uint16(cfg.MaxPriceImpactBps),
		Logger:            logger,
	}
	var flagCache *flags.Cached
	if flagStore != nil {
		svcCfg.Flags = flagStore
		if cfg.FlagCacheTTL > 0 {
			flagCache = flags.NewCached(flagStore, cfg.FlagCacheTTL)
			svcCfg.Flags = flagCache
		}
	}
	svc, err := service.New(svcCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool service")
	}

	var reg *registry.Registry
	if cfg.PoolConfigPath != "" {
		reg, err = registry.Load(cfg.PoolConfigPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to load pool registry")
		}
	}
	if err := svc.Bootstrap(ctx, reg); err != nil {
		logger.WithError(err).Fatal("failed to bootstrap pools")
	}

	// Reserves must always match what the in-process vaults hold
	rec := reconcile.New(reconcile.Config{
		Pools:  store,
		Vaults: reconcile.LedgerVaultReader{Ledger: led, Pools: store},
		Logger: logger,
	})
	go func() {
		if err := rec.Loop(ctx, cfg.ReconcileInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("reconciler stopped")
		}
	}()

	h := &server.Handlers{
		Pools:   svc,
		Flags:   flagStore,
		DevMode: cfg.DevMode,
		Logger:  logger,
	}
	if flagCache != nil {
		h.FlagChanged = flagCache.Invalidate
	}
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:           cfg.APIAddr,
			DevMode:        cfg.DevMode,
			APIKey:         cfg.APIKey,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":       cfg.APIAddr,
		"program":    programID.String(),
		"arithmetic": mode.String(),
		"store":      cfg.PoolStore,
	}).Info("amm daemon starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("shutdown did not complete")
	}
}
