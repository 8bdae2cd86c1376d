package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/config"
	"github.com/aman-zulfiqar/token2022-amm/internal/reconcile"
	"github.com/aman-zulfiqar/token2022-amm/internal/registry"
	"github.com/aman-zulfiqar/token2022-amm/internal/rpc"
)

func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	}
}

// main compares on-chain pool reserves with their vault token accounts
func main() {
	once := flag.Bool("once", false, "run a single pass and exit non-zero on drift")
	flag.Parse()

	bootLogger := logrus.New()
	loadEnv(bootLogger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		bootLogger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.PoolConfigPath == "" {
		bootLogger.Fatal("POOL_CONFIG_PATH is required")
	}
	logger := cfg.NewLogger()
	programID, _ := cfg.Program()

	reg, err := registry.Load(cfg.PoolConfigPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load pool registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	client := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})

	rec := reconcile.New(reconcile.Config{
		Pools: reconcile.ChainPools{
			Client:    client,
			ProgramID: programID,
			Registry:  reg,
		},
		Vaults: reconcile.RPCVaultReader{Client: client},
		Logger: logger,
	})

	logger.WithFields(logrus.Fields{
		"rpc":      cfg.RPCUrl,
		"pools":    reg.Len(),
		"interval": cfg.ReconcileInterval,
	}).Info("reconciler starting")

	if *once {
		reports, err := rec.Run(ctx)
		if err != nil {
			logger.WithError(err).Fatal("reconcile failed")
		}
		healthy := true
		for _, r := range reports {
			fmt.Printf("pool=%s reserve_a=%d vault_a=%d reserve_b=%d vault_b=%d healthy=%v\n",
				r.Pool, r.ReserveA, r.VaultA, r.ReserveB, r.VaultB, r.Healthy())
			healthy = healthy && r.Healthy()
		}
		if !healthy {
			os.Exit(1)
		}
		return
	}

	if err := rec.Loop(ctx, cfg.ReconcileInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("reconciler stopped")
	}
}
