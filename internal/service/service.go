// Package service runs pool operations end to end: it loads the pool record,
// runs the engine inside a ledger transaction, persists the result and then
// publishes the event.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/flags"
	"github.com/aman-zulfiqar/token2022-amm/internal/hook"
	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
	"github.com/aman-zulfiqar/token2022-amm/internal/quote"
	"github.com/aman-zulfiqar/token2022-amm/internal/registry"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

var (
	// ErrReentrant is returned when an operation is started on a pool from
	// inside an operation already running on that pool.
	ErrReentrant = errors.New("pool operation already in progress")
	// ErrPaused is returned when a kill switch is on for the operation.
	ErrPaused = errors.New("operation paused")
	// ErrPriceImpact is returned when a swap moves the price more than the
	// configured limit.
	ErrPriceImpact = errors.New("price impact too high")
)

// Config holds configuration for the pool service
type Config struct {
	Engine *amm.Engine
	Ledger *ledger.Ledger
	Store  storage.PoolStore

	// Events serves recent history. Defaults to Store when it implements
	// storage.EventLog.
	Events storage.EventLog
	// Sinks receive every committed event. Failures are logged and do not
	// affect the operation.
	Sinks []storage.EventSink

	// Flags gates operations with kill switches. Optional.
	Flags flags.Checker
	// Whitelist is registered as the transfer hook of every pooled asset.
	// Optional.
	Whitelist *hook.Whitelist

	ProgramID solana.PublicKey
	// MaxPriceImpactBps rejects swaps above this impact. Zero disables.
	MaxPriceImpactBps uint16

	Logger *logrus.Logger
}

// Service is the entry point for pool operations.
//
// The ledger runs one transaction at a time, which serializes all operations
// on all pools. Transfer hooks may call back into the service with the ctx
// they were given; such calls join the running transaction, and a call on a
// pool that is already being operated on fails with ErrReentrant.
type Service struct {
	engine    *amm.Engine
	ledger    *ledger.Ledger
	store     storage.PoolStore
	events    storage.EventLog
	sinks     []storage.EventSink
	flags     flags.Checker
	whitelist *hook.Whitelist
	programID solana.PublicKey
	maxImpact uint16
	logger    *logrus.Logger
}

// New creates a pool service
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil || cfg.Ledger == nil || cfg.Store == nil {
		return nil, fmt.Errorf("engine, ledger and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = program.DefaultProgramID
	}
	if cfg.Events == nil {
		if log, ok := cfg.Store.(storage.EventLog); ok {
			cfg.Events = log
		}
	}

	return &Service{
		engine:    cfg.Engine,
		ledger:    cfg.Ledger,
		store:     cfg.Store,
		events:    cfg.Events,
		sinks:     cfg.Sinks,
		flags:     cfg.Flags,
		whitelist: cfg.Whitelist,
		programID: cfg.ProgramID,
		maxImpact: cfg.MaxPriceImpactBps,
		logger:    cfg.Logger,
	}, nil
}

func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

func (s *Service) Whitelist() *hook.Whitelist { return s.whitelist }

func (s *Service) ProgramID() solana.PublicKey { return s.programID }

// unit tracks one outermost operation and every operation nested in it
// through transfer hooks.
type unit struct {
	active map[solana.PublicKey]bool
	// before-images of pools saved so far, restored if the unit fails
	saved  []amm.Pool
	events []*models.PoolEvent
}

type unitKey struct{}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

// mutate runs op against the stored record of addr inside a ledger
// transaction and saves the result. op returns the event to publish.
func (s *Service) mutate(ctx context.Context, addr solana.PublicKey, pauseFlag string,
	op func(ctx context.Context, tx *ledger.Tx, pool *amm.Pool) (*models.PoolEvent, error),
) (*amm.Pool, error) {
	u := unitFrom(ctx)
	outer := u == nil
	if outer {
		u = &unit{active: make(map[solana.PublicKey]bool)}
		ctx = context.WithValue(ctx, unitKey{}, u)
	}
	if u.active[addr] {
		return nil, fmt.Errorf("pool %s: %w", addr, ErrReentrant)
	}

	paused, err := flags.Paused(ctx, s.flags, addr.String(), pauseFlag)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, fmt.Errorf("%s on pool %s: %w", pauseFlag, addr, ErrPaused)
	}

	u.active[addr] = true
	defer delete(u.active, addr)

	// A failed unit undoes only what it and its nested operations saved;
	// an enclosing operation may tolerate the error and carry on.
	mark, evMark := len(u.saved), len(u.events)

	var after amm.Pool
	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		pool, err := s.store.Get(ctx, addr)
		if err != nil {
			return err
		}
		before := *pool

		ev, err := op(ctx, tx, pool)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, pool); err != nil {
			return fmt.Errorf("failed to save pool: %w", err)
		}
		u.saved = append(u.saved, before)
		after = *pool

		fillEvent(ev, pool)
		u.events = append(u.events, ev)
		return nil
	})

	if err != nil {
		s.restore(u.saved[mark:])
		u.saved = u.saved[:mark]
		u.events = u.events[:evMark]
		return nil, err
	}
	if !outer {
		return &after, nil
	}
	s.publish(u.events)
	return &after, nil
}

// restore puts back pool records saved by a unit that later failed, newest
// first.
func (s *Service) restore(saved []amm.Pool) {
	ctx := context.Background()
	for i := len(saved) - 1; i >= 0; i-- {
		p := saved[i]
		if err := s.store.Save(ctx, &p); err != nil {
			s.logger.WithError(err).WithField("pool", p.Address.String()).Error("failed to restore pool record")
		}
	}
}

func fillEvent(ev *models.PoolEvent, pool *amm.Pool) {
	ev.Pool = pool.Address.String()
	ev.Pair = program.PairKey(pool.AssetA, pool.AssetB)
	ev.Sequence = pool.Sequence
	ev.ID = fmt.Sprintf("%s:%d", ev.Pool, pool.Sequence)
	ev.Timestamp = time.Now().UTC()
	ev.ReserveA = pool.ReserveA
	ev.ReserveB = pool.ReserveB
	ev.ClaimSupply = pool.ClaimSupply
}

func (s *Service) publish(events []*models.PoolEvent) {
	for _, ev := range events {
		for _, sink := range s.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), constants.EventPublishTimeout)
			if err := sink.PublishEvent(ctx, ev); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"event": ev.ID,
					"kind":  ev.Kind,
				}).Warn("failed to publish event")
			}
			cancel()
		}
	}
}

// attach registers a pool's vaults, claim issuer and transfer hooks with
// the ledger. It is idempotent.
func (s *Service) attach(pool *amm.Pool) {
	s.ledger.RegisterVault(pool.VaultA, pool.Address)
	s.ledger.RegisterVault(pool.VaultB, pool.Address)
	s.ledger.RegisterIssuer(pool.ClaimAsset, pool.Address)
	if s.whitelist != nil {
		s.whitelist.Exempt(pool.VaultA)
		s.whitelist.Exempt(pool.VaultB)
		s.ledger.RegisterHook(pool.AssetA, s.whitelist)
		s.ledger.RegisterHook(pool.AssetB, s.whitelist)
	}
}

// CreateParams describes a new pool.
type CreateParams struct {
	MintA      solana.PublicKey
	MintB      solana.PublicKey
	FeeRateBps uint64
	Authority  solana.PublicKey
}

// CreatePool derives the pool's addresses from its mints and stores an
// empty pool. Mints are ordered canonically, so either order names the same
// pool.
func (s *Service) CreatePool(ctx context.Context, p CreateParams) (*amm.Pool, error) {
	addrs, err := program.DerivePool(s.programID, p.MintA, p.MintB)
	if err != nil {
		return nil, &amm.Error{Op: "initialize", Kind: amm.ErrInvalidPair, Err: err}
	}

	pool, err := s.engine.Initialize(amm.InitParams{
		Address:    addrs.Pool,
		Authority:  p.Authority,
		AssetA:     addrs.MintA,
		AssetB:     addrs.MintB,
		VaultA:     addrs.VaultA,
		VaultB:     addrs.VaultB,
		ClaimAsset: addrs.ClaimMint,
		Bump:       addrs.Bump,
		FeeRateBps: p.FeeRateBps,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, pool); err != nil {
		return nil, err
	}
	s.attach(pool)

	ev := &models.PoolEvent{Kind: models.EventInitialize}
	if !p.Authority.IsZero() {
		ev.Actor = p.Authority.String()
	}
	fillEvent(ev, pool)
	s.publish([]*models.PoolEvent{ev})
	return pool, nil
}

// Bootstrap attaches every stored pool and creates the registered pools
// that do not exist yet.
func (s *Service) Bootstrap(ctx context.Context, reg *registry.Registry) error {
	existing, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pools: %w", err)
	}
	for _, pool := range existing {
		s.attach(pool)
	}
	if reg == nil {
		return nil
	}

	for _, def := range reg.All() {
		pool, err := s.CreatePool(ctx, CreateParams{
			MintA:      def.MintA,
			MintB:      def.MintB,
			FeeRateBps: def.FeeRateBps,
			Authority:  def.Authority,
		})
		if errors.Is(err, storage.ErrPoolExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pool %s: %w", def.Name, err)
		}
		s.logger.WithFields(logrus.Fields{
			"name": def.Name,
			"pool": pool.Address.String(),
		}).Info("registered pool")
	}
	return nil
}

// Deposit adds liquidity from depositor.
func (s *Service) Deposit(ctx context.Context, addr, depositor solana.PublicKey, req amm.DepositRequest) (*amm.DepositResult, *amm.Pool, error) {
	var res *amm.DepositResult
	pool, err := s.mutate(ctx, addr, constants.FlagDepositsPaused,
		func(ctx context.Context, tx *ledger.Tx, pool *amm.Pool) (*models.PoolEvent, error) {
			var err error
			res, err = s.engine.Deposit(ctx, tx.As(depositor, pool.Address), pool, depositor, req)
			if err != nil {
				return nil, err
			}
			return &models.PoolEvent{
				Kind:        models.EventDeposit,
				Actor:       depositor.String(),
				AmountA:     res.AmountA,
				AmountB:     res.AmountB,
				ClaimAmount: res.ClaimMinted,
			}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return res, pool, nil
}

// Withdraw burns claim units of withdrawer and pays out its share.
func (s *Service) Withdraw(ctx context.Context, addr, withdrawer solana.PublicKey, req amm.WithdrawRequest) (*amm.WithdrawResult, *amm.Pool, error) {
	var res *amm.WithdrawResult
	pool, err := s.mutate(ctx, addr, constants.FlagWithdrawsPaused,
		func(ctx context.Context, tx *ledger.Tx, pool *amm.Pool) (*models.PoolEvent, error) {
			var err error
			res, err = s.engine.Withdraw(ctx, tx.As(withdrawer, pool.Address), pool, withdrawer, req)
			if err != nil {
				return nil, err
			}
			return &models.PoolEvent{
				Kind:        models.EventWithdraw,
				Actor:       withdrawer.String(),
				AmountA:     res.AmountA,
				AmountB:     res.AmountB,
				ClaimAmount: req.ClaimAmount,
			}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return res, pool, nil
}

// Swap trades against the pool for trader.
func (s *Service) Swap(ctx context.Context, addr, trader solana.PublicKey, req amm.SwapRequest) (*amm.SwapResult, *amm.Pool, error) {
	var res *amm.SwapResult
	pool, err := s.mutate(ctx, addr, constants.FlagSwapsPaused,
		func(ctx context.Context, tx *ledger.Tx, pool *amm.Pool) (*models.PoolEvent, error) {
			if err := s.checkImpact(pool, req); err != nil {
				return nil, err
			}
			var err error
			res, err = s.engine.Swap(ctx, tx.As(trader, pool.Address), pool, trader, req)
			if err != nil {
				return nil, err
			}
			return &models.PoolEvent{
				Kind:      models.EventSwap,
				Actor:     trader.String(),
				Direction: req.Direction.String(),
				AmountIn:  res.AmountIn,
				AmountOut: res.AmountOut,
				Fee:       res.FeeTaken,
			}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return res, pool, nil
}

func (s *Service) checkImpact(pool *amm.Pool, req amm.SwapRequest) error {
	if s.maxImpact == 0 {
		return nil
	}
	res, err := s.engine.QuoteSwap(pool, req)
	if err != nil {
		return nil // Swap fails with the same error
	}
	reserveIn, reserveOut := pool.Reserves(req.Direction)
	impact := quote.PriceImpact(res.AmountIn, res.AmountOut, reserveIn, reserveOut)
	if err := quote.ValidatePriceImpact(impact, s.maxImpact); err != nil {
		return fmt.Errorf("%w: %v", ErrPriceImpact, err)
	}
	return nil
}

// Quote previews a swap without changing anything.
func (s *Service) Quote(ctx context.Context, addr solana.PublicKey, req amm.SwapRequest, slippageBps uint16) (*quote.Quote, error) {
	pool, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.QuoteSwap(pool, req)
	if err != nil {
		return nil, err
	}
	return quote.Build(pool, req.Direction, res, slippageBps), nil
}

func (s *Service) Get(ctx context.Context, addr solana.PublicKey) (*amm.Pool, error) {
	return s.store.Get(ctx, addr)
}

func (s *Service) GetByPair(ctx context.Context, mintA, mintB solana.PublicKey) (*amm.Pool, error) {
	return s.store.GetByPair(ctx, mintA, mintB)
}

func (s *Service) List(ctx context.Context) ([]*amm.Pool, error) {
	return s.store.List(ctx)
}

// Events returns the most recent events of a pool, newest first.
func (s *Service) Events(ctx context.Context, addr solana.PublicKey, limit int64) ([]*models.PoolEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = constants.DefaultEventsLimit
	}
	return s.events.RecentEvents(ctx, addr, limit)
}

// Balance returns owner's holding of asset.
func (s *Service) Balance(asset, owner solana.PublicKey) uint64 {
	return s.ledger.Balance(asset, owner)
}

// Faucet credits owner with freshly issued units of an external asset.
func (s *Service) Faucet(ctx context.Context, asset, owner solana.PublicKey, amount uint64) error {
	if err := s.ledger.Credit(ctx, asset, owner, amount); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"asset":  asset.String(),
		"owner":  owner.String(),
		"amount": amount,
	}).Info("faucet credit")
	return nil
}

// Ping checks the pool store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Mode returns the engine's arithmetic mode.
func (s *Service) Mode() amm.ArithmeticMode {
	return s.engine.Mode()
}
