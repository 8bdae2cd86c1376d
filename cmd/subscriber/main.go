package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/cache"
	"github.com/aman-zulfiqar/token2022-amm/internal/config"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
)

// main tails pool events published by ammd
func main() {
	pool := flag.String("pool", "", "only this pool's events")
	kind := flag.String("kind", "", "only events of this kind (initialize, deposit, withdraw, swap)")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	pubsub := cache.NewPubSubManager(client, logger)

	channel := constants.PubSubChannelEvents
	switch {
	case *pool != "":
		channel = constants.PubSubPoolChannelPrefix + *pool
	case *kind != "":
		channel = constants.PubSubKindChannelPrefix + *kind
	}

	handle := func(ev *models.PoolEvent) {
		fields := logrus.Fields{
			"id":        ev.ID,
			"pool":      ev.Pool,
			"reserve_a": ev.ReserveA,
			"reserve_b": ev.ReserveB,
			"supply":    ev.ClaimSupply,
		}
		switch ev.Kind {
		case models.EventSwap:
			fields["direction"] = ev.Direction
			fields["amount_in"] = ev.AmountIn
			fields["amount_out"] = ev.AmountOut
			fields["fee"] = ev.Fee
		case models.EventDeposit, models.EventWithdraw:
			fields["amount_a"] = ev.AmountA
			fields["amount_b"] = ev.AmountB
			fields["claim"] = ev.ClaimAmount
		}
		logger.WithFields(fields).Info(ev.Kind)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- pubsub.Subscribe(ctx, channel, handle)
	}()

	// Pattern subscription counts new pools as they appear
	seen := make(map[string]struct{})
	go func() {
		_ = pubsub.PSubscribe(ctx, constants.PubSubPoolChannelPrefix+"*", func(ev *models.PoolEvent) {
			if _, ok := seen[ev.Pool]; !ok {
				seen[ev.Pool] = struct{}{}
				logger.WithFields(logrus.Fields{"pool": ev.Pool, "pair": ev.Pair, "pools": len(seen)}).Info("active pool")
			}
		})
	}()

	logger.WithField("channel", channel).Info("subscriber running, press Ctrl+C to stop")

	select {
	case <-sigCh:
		logger.Info("shutting down subscriber")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Fatal("subscription failed")
		}
	}
}
