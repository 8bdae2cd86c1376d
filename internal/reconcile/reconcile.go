// Package reconcile checks tracked pool reserves against what the vaults
// actually hold.
//
// Reserves are never read back from the vaults during a transition, so any
// direct transfer into a vault shows up here as surplus. A vault holding
// less than its reserve means the accounting is wrong and is reported as a
// shortfall.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
	"github.com/aman-zulfiqar/token2022-amm/internal/registry"
	"github.com/aman-zulfiqar/token2022-amm/internal/rpc"
)

// VaultReader returns what a vault holds of an asset.
type VaultReader interface {
	VaultBalance(ctx context.Context, asset, vault solana.PublicKey) (uint64, error)
}

// PoolSource lists the pools to check. storage.PoolStore satisfies it.
type PoolSource interface {
	List(ctx context.Context) ([]*amm.Pool, error)
}

// Snapshotter is a VaultReader that can read a pool record and both of its
// vaults at a single committed point. Check prefers it when available.
type Snapshotter interface {
	Snapshot(ctx context.Context, pool *amm.Pool) (current *amm.Pool, vaultA, vaultB uint64, err error)
}

// PoolGetter re-reads one pool record. storage.PoolStore satisfies it.
type PoolGetter interface {
	Get(ctx context.Context, address solana.PublicKey) (*amm.Pool, error)
}

// LedgerVaultReader reads vaults from the in-process ledger. With Pools set
// it also re-reads the pool record under the ledger's transaction lock, so
// an operation committed after the pool list was taken is not reported as
// drift.
type LedgerVaultReader struct {
	Ledger *ledger.Ledger
	Pools  PoolGetter
}

var _ Snapshotter = LedgerVaultReader{}

func (r LedgerVaultReader) VaultBalance(ctx context.Context, asset, vault solana.PublicKey) (uint64, error) {
	var bal uint64
	err := r.Ledger.View(ctx, func(context.Context) error {
		bal = r.Ledger.Balance(asset, vault)
		return nil
	})
	return bal, err
}

func (r LedgerVaultReader) Snapshot(ctx context.Context, pool *amm.Pool) (*amm.Pool, uint64, uint64, error) {
	var va, vb uint64
	current := pool
	err := r.Ledger.View(ctx, func(ctx context.Context) error {
		if r.Pools != nil {
			p, err := r.Pools.Get(ctx, pool.Address)
			if err != nil {
				return err
			}
			current = p
		}
		va = r.Ledger.Balance(current.AssetA, current.VaultA)
		vb = r.Ledger.Balance(current.AssetB, current.VaultB)
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return current, va, vb, nil
}

// RPCVaultReader reads vault token accounts from a Solana node.
type RPCVaultReader struct {
	Client *rpc.Client
}

func (r RPCVaultReader) VaultBalance(ctx context.Context, _ solana.PublicKey, vault solana.PublicKey) (uint64, error) {
	return r.Client.GetTokenAccountBalance(ctx, vault)
}

// ChainPools reads the pool accounts of every registered pair from chain.
type ChainPools struct {
	Client    *rpc.Client
	ProgramID solana.PublicKey
	Registry  *registry.Registry
}

func (c ChainPools) List(ctx context.Context) ([]*amm.Pool, error) {
	defs := c.Registry.All()
	pools := make([]*amm.Pool, 0, len(defs))
	for _, def := range defs {
		addrs, err := program.DerivePool(c.ProgramID, def.MintA, def.MintB)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", def.Name, err)
		}
		data, err := c.Client.GetAccountData(ctx, addrs.Pool)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", def.Name, err)
		}
		acc, err := program.DecodePoolAccount(data)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", def.Name, err)
		}
		pools = append(pools, acc.ToPool(addrs.Pool))
	}
	return pools, nil
}

// Report is the result of checking one pool.
type Report struct {
	Pool     solana.PublicKey `json:"pool"`
	ReserveA uint64           `json:"reserve_a,string"`
	ReserveB uint64           `json:"reserve_b,string"`
	VaultA   uint64           `json:"vault_a,string"`
	VaultB   uint64           `json:"vault_b,string"`

	SurplusA   uint64 `json:"surplus_a,string"`
	SurplusB   uint64 `json:"surplus_b,string"`
	ShortfallA uint64 `json:"shortfall_a,string"`
	ShortfallB uint64 `json:"shortfall_b,string"`
}

// Healthy reports whether both vaults cover their reserves.
func (r *Report) Healthy() bool {
	return r.ShortfallA == 0 && r.ShortfallB == 0
}

func drift(vault, reserve uint64) (surplus, shortfall uint64) {
	if vault >= reserve {
		return vault - reserve, 0
	}
	return 0, reserve - vault
}

// Config holds configuration for the reconciler
type Config struct {
	Pools  PoolSource
	Vaults VaultReader
	Logger *logrus.Logger
}

// Reconciler compares pool reserves with vault balances.
type Reconciler struct {
	pools  PoolSource
	vaults VaultReader
	logger *logrus.Logger

	mu   sync.RWMutex
	last []*Report
}

func New(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Reconciler{
		pools:  cfg.Pools,
		vaults: cfg.Vaults,
		logger: cfg.Logger,
	}
}

// Check builds the report for a single pool.
func (r *Reconciler) Check(ctx context.Context, pool *amm.Pool) (*Report, error) {
	if snap, ok := r.vaults.(Snapshotter); ok {
		current, va, vb, err := snap.Snapshot(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("snapshot of %s: %w", pool.Address, err)
		}
		return newReport(current, va, vb), nil
	}

	va, err := r.vaults.VaultBalance(ctx, pool.AssetA, pool.VaultA)
	if err != nil {
		return nil, fmt.Errorf("vault A of %s: %w", pool.Address, err)
	}
	vb, err := r.vaults.VaultBalance(ctx, pool.AssetB, pool.VaultB)
	if err != nil {
		return nil, fmt.Errorf("vault B of %s: %w", pool.Address, err)
	}
	return newReport(pool, va, vb), nil
}

func newReport(pool *amm.Pool, va, vb uint64) *Report {

	rep := &Report{
		Pool:     pool.Address,
		ReserveA: pool.ReserveA,
		ReserveB: pool.ReserveB,
		VaultA:   va,
		VaultB:   vb,
	}
	rep.SurplusA, rep.ShortfallA = drift(va, pool.ReserveA)
	rep.SurplusB, rep.ShortfallB = drift(vb, pool.ReserveB)
	return rep
}

// Run checks every pool once. Pools whose vaults cannot be read are logged
// and skipped.
func (r *Reconciler) Run(ctx context.Context) ([]*Report, error) {
	pools, err := r.pools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	reports := make([]*Report, 0, len(pools))
	for _, pool := range pools {
		rep, err := r.Check(ctx, pool)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.WithError(err).WithField("pool", pool.Address.String()).Warn("reconcile failed")
			continue
		}

		fields := logrus.Fields{
			"pool":      pool.Address.String(),
			"reserve_a": rep.ReserveA,
			"reserve_b": rep.ReserveB,
			"vault_a":   rep.VaultA,
			"vault_b":   rep.VaultB,
		}
		if !rep.Healthy() {
			fields["shortfall_a"] = rep.ShortfallA
			fields["shortfall_b"] = rep.ShortfallB
			r.logger.WithFields(fields).Error("vault holds less than tracked reserve")
		} else if rep.SurplusA > 0 || rep.SurplusB > 0 {
			fields["surplus_a"] = rep.SurplusA
			fields["surplus_b"] = rep.SurplusB
			r.logger.WithFields(fields).Info("vault surplus")
		} else {
			r.logger.WithFields(fields).Debug("pool reconciled")
		}
		reports = append(reports, rep)
	}

	r.mu.Lock()
	r.last = reports
	r.mu.Unlock()
	return reports, nil
}

// Last returns the reports of the most recent Run.
func (r *Reconciler) Last() []*Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Loop runs reconciliation every interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.WithField("interval", interval).Info("starting reconciliation")

	for {
		if _, err := r.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.WithError(err).Error("reconcile error")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
