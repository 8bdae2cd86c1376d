package amm

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	opInitialize = "initialize"
	opDeposit    = "deposit"
	opWithdraw   = "withdraw"
	opSwap       = "swap"
)

// EngineConfig holds configuration for the pool engine
type EngineConfig struct {
	Mode   ArithmeticMode
	Logger *logrus.Logger
}

// Engine implements the four pool state transitions. It keeps no state of
// its own: every operation works on the Pool handed to it and assumes the
// caller serializes operations on that pool.
//
// Each operation validates and computes the complete next state first, then
// runs the external transfers, and only after all of them succeed writes the
// new values into the Pool. A failed operation leaves the Pool untouched.
type Engine struct {
	math   checked
	logger *logrus.Logger
}

// NewEngine creates an engine with the given config
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Engine{math: checked{mode: cfg.Mode}, logger: cfg.Logger}
}

// Mode returns the engine's arithmetic mode.
func (e *Engine) Mode() ArithmeticMode {
	return e.math.mode
}

// Initialize creates an empty pool bound to the given assets and custodial
// identifiers. No transfers occur.
func (e *Engine) Initialize(p InitParams) (*Pool, error) {
	if p.FeeRateBps > MaxFeeRateBps {
		return nil, opErr(opInitialize, ErrInvalidFeeRate, "%d bps exceeds max %d bps", p.FeeRateBps, MaxFeeRateBps)
	}
	if p.AssetA.IsZero() || p.AssetB.IsZero() {
		return nil, opErr(opInitialize, ErrInvalidPair, "asset identifiers are required")
	}
	if p.AssetA.Equals(p.AssetB) {
		return nil, opErr(opInitialize, ErrInvalidPair, "assets must differ")
	}
	ids := []solana.PublicKey{p.Address, p.VaultA, p.VaultB, p.ClaimAsset}
	for i, id := range ids {
		if id.IsZero() {
			return nil, opErr(opInitialize, ErrInvalidPair, "pool, vault and claim identifiers are required")
		}
		for _, other := range ids[i+1:] {
			if id.Equals(other) {
				return nil, opErr(opInitialize, ErrInvalidPair, "pool, vault and claim identifiers must be distinct")
			}
		}
	}

	pool := &Pool{
		Address:    p.Address,
		Authority:  p.Authority,
		AssetA:     p.AssetA,
		AssetB:     p.AssetB,
		VaultA:     p.VaultA,
		VaultB:     p.VaultB,
		ClaimAsset: p.ClaimAsset,
		FeeRateBps: p.FeeRateBps,
		Bump:       p.Bump,
		Sequence:   1,
	}

	e.logger.WithFields(logrus.Fields{
		"pool":         pool.Address.String(),
		"fee_rate_bps": pool.FeeRateBps,
	}).Info("initialized pool")

	return pool, nil
}

// PlanDeposit computes the outcome of a deposit without touching the pool.
func (e *Engine) PlanDeposit(pool *Pool, req DepositRequest) (DepositResult, error) {
	res, _, err := e.planDeposit(pool, req)
	return res, err
}

func (e *Engine) planDeposit(pool *Pool, req DepositRequest) (DepositResult, Pool, error) {
	var res DepositResult
	next := *pool

	if pool.ReserveA == 0 && pool.ReserveB == 0 {
		if req.AmountADesired == 0 || req.AmountBDesired == 0 {
			return res, next, opErr(opDeposit, ErrInsufficientAmount, "seeding requires both amounts > 0")
		}
		claimRaw := e.math.sqrtProduct(req.AmountADesired, req.AmountBDesired)
		if claimRaw <= MinimumLiquidity {
			return res, next, opErr(opDeposit, ErrInsufficientLiquidity,
				"initial liquidity %d must exceed minimum %d", claimRaw, MinimumLiquidity)
		}
		res = DepositResult{
			AmountA:     req.AmountADesired,
			AmountB:     req.AmountBDesired,
			ClaimMinted: claimRaw - MinimumLiquidity,
			Seeded:      true,
		}
	} else {
		bOptimal, err := e.math.mulDiv(req.AmountADesired, pool.ReserveB, pool.ReserveA)
		if err != nil {
			return res, next, arithErr(opDeposit, "amount_b_optimal", err)
		}
		if bOptimal <= req.AmountBDesired {
			if bOptimal < req.AmountBMin {
				return res, next, opErr(opDeposit, ErrInsufficientAmount,
					"amount_b_optimal %d below minimum %d", bOptimal, req.AmountBMin)
			}
			claim, err := e.math.mulDiv(req.AmountADesired, pool.ClaimSupply, pool.ReserveA)
			if err != nil {
				return res, next, arithErr(opDeposit, "claim_minted", err)
			}
			res = DepositResult{AmountA: req.AmountADesired, AmountB: bOptimal, ClaimMinted: claim}
		} else {
			aOptimal, err := e.math.mulDiv(req.AmountBDesired, pool.ReserveA, pool.ReserveB)
			if err != nil {
				return res, next, arithErr(opDeposit, "amount_a_optimal", err)
			}
			if aOptimal > req.AmountADesired {
				return res, next, opErr(opDeposit, ErrInsufficientAmount,
					"amount_a_optimal %d exceeds desired %d", aOptimal, req.AmountADesired)
			}
			if aOptimal < req.AmountAMin {
				return res, next, opErr(opDeposit, ErrInsufficientAmount,
					"amount_a_optimal %d below minimum %d", aOptimal, req.AmountAMin)
			}
			claim, err := e.math.mulDiv(req.AmountBDesired, pool.ClaimSupply, pool.ReserveB)
			if err != nil {
				return res, next, arithErr(opDeposit, "claim_minted", err)
			}
			res = DepositResult{AmountA: aOptimal, AmountB: req.AmountBDesired, ClaimMinted: claim}
		}
	}

	var err error
	if next.ReserveA, err = e.math.add(pool.ReserveA, res.AmountA); err != nil {
		return res, next, arithErr(opDeposit, "reserve_a", err)
	}
	if next.ReserveB, err = e.math.add(pool.ReserveB, res.AmountB); err != nil {
		return res, next, arithErr(opDeposit, "reserve_b", err)
	}
	if next.ClaimSupply, err = e.math.add(pool.ClaimSupply, res.ClaimMinted); err != nil {
		return res, next, arithErr(opDeposit, "claim_supply", err)
	}
	next.Sequence++
	return res, next, nil
}

// Deposit moves the depositor's assets into the vaults, issues claim units
// to the depositor and then credits the pool.
func (e *Engine) Deposit(ctx context.Context, host Host, pool *Pool, depositor solana.PublicKey, req DepositRequest) (*DepositResult, error) {
	res, next, err := e.planDeposit(pool, req)
	if err != nil {
		e.rejected(pool, opDeposit, err)
		return nil, err
	}

	if err := host.Transfer(ctx, pool.AssetA, depositor, pool.VaultA, res.AmountA); err != nil {
		return nil, transferErr(opDeposit, "token A to vault", err)
	}
	if err := host.Transfer(ctx, pool.AssetB, depositor, pool.VaultB, res.AmountB); err != nil {
		return nil, transferErr(opDeposit, "token B to vault", err)
	}
	if err := host.Mint(ctx, pool.ClaimAsset, depositor, res.ClaimMinted); err != nil {
		return nil, transferErr(opDeposit, "mint claim", err)
	}

	*pool = next

	e.logger.WithFields(logrus.Fields{
		"pool":         pool.Address.String(),
		"amount_a":     res.AmountA,
		"amount_b":     res.AmountB,
		"claim_minted": res.ClaimMinted,
	}).Info("added liquidity")

	return &res, nil
}

// PlanWithdraw computes the outcome of a withdrawal without touching the pool.
func (e *Engine) PlanWithdraw(pool *Pool, req WithdrawRequest) (WithdrawResult, error) {
	res, _, err := e.planWithdraw(pool, req)
	return res, err
}

func (e *Engine) planWithdraw(pool *Pool, req WithdrawRequest) (WithdrawResult, Pool, error) {
	var res WithdrawResult
	next := *pool

	amountA, err := e.math.mulDiv(req.ClaimAmount, pool.ReserveA, pool.ClaimSupply)
	if err != nil {
		return res, next, arithErr(opWithdraw, "amount_a", err)
	}
	amountB, err := e.math.mulDiv(req.ClaimAmount, pool.ReserveB, pool.ClaimSupply)
	if err != nil {
		return res, next, arithErr(opWithdraw, "amount_b", err)
	}
	if amountA < req.AmountAMin {
		return res, next, opErr(opWithdraw, ErrInsufficientAmount, "amount_a %d below minimum %d", amountA, req.AmountAMin)
	}
	if amountB < req.AmountBMin {
		return res, next, opErr(opWithdraw, ErrInsufficientAmount, "amount_b %d below minimum %d", amountB, req.AmountBMin)
	}

	if next.ReserveA, err = e.math.sub(pool.ReserveA, amountA); err != nil {
		return res, next, arithErr(opWithdraw, "reserve_a", err)
	}
	if next.ReserveB, err = e.math.sub(pool.ReserveB, amountB); err != nil {
		return res, next, arithErr(opWithdraw, "reserve_b", err)
	}
	if next.ClaimSupply, err = e.math.sub(pool.ClaimSupply, req.ClaimAmount); err != nil {
		return res, next, arithErr(opWithdraw, "claim_supply", err)
	}
	next.Sequence++

	res = WithdrawResult{AmountA: amountA, AmountB: amountB}
	return res, next, nil
}

// Withdraw burns the withdrawer's claim units, pays out the proportional
// share of both reserves and then debits the pool.
func (e *Engine) Withdraw(ctx context.Context, host Host, pool *Pool, withdrawer solana.PublicKey, req WithdrawRequest) (*WithdrawResult, error) {
	res, next, err := e.planWithdraw(pool, req)
	if err != nil {
		e.rejected(pool, opWithdraw, err)
		return nil, err
	}

	if err := host.Burn(ctx, pool.ClaimAsset, withdrawer, req.ClaimAmount); err != nil {
		return nil, transferErr(opWithdraw, "burn claim", err)
	}
	if err := host.Transfer(ctx, pool.AssetA, pool.VaultA, withdrawer, res.AmountA); err != nil {
		return nil, transferErr(opWithdraw, "token A from vault", err)
	}
	if err := host.Transfer(ctx, pool.AssetB, pool.VaultB, withdrawer, res.AmountB); err != nil {
		return nil, transferErr(opWithdraw, "token B from vault", err)
	}

	*pool = next

	e.logger.WithFields(logrus.Fields{
		"pool":         pool.Address.String(),
		"claim_burned": req.ClaimAmount,
		"amount_a":     res.AmountA,
		"amount_b":     res.AmountB,
	}).Info("removed liquidity")

	return &res, nil
}

// QuoteSwap prices a swap against the current reserves without touching the
// pool. It applies the same checks as Swap.
func (e *Engine) QuoteSwap(pool *Pool, req SwapRequest) (SwapResult, error) {
	res, _, err := e.planSwap(pool, req)
	return res, err
}

func (e *Engine) planSwap(pool *Pool, req SwapRequest) (SwapResult, Pool, error) {
	var res SwapResult
	next := *pool
	reserveIn, reserveOut := pool.Reserves(req.Direction)

	amountInNet, err := e.math.mulDiv(req.AmountIn, BpsDenominator-pool.FeeRateBps, BpsDenominator)
	if err != nil {
		return res, next, arithErr(opSwap, "amount_in_net", err)
	}
	fee, err := e.math.sub(req.AmountIn, amountInNet)
	if err != nil {
		return res, next, arithErr(opSwap, "fee", err)
	}
	denom, err := e.math.add(reserveIn, amountInNet)
	if err != nil {
		return res, next, arithErr(opSwap, "reserve_in + amount_in_net", err)
	}
	amountOut, err := e.math.mulDiv(reserveOut, amountInNet, denom)
	if err != nil {
		return res, next, arithErr(opSwap, "amount_out", err)
	}

	if amountOut < req.AmountOutMin {
		return res, next, opErr(opSwap, ErrInsufficientOutputAmount,
			"amount_out %d below minimum %d", amountOut, req.AmountOutMin)
	}
	if amountOut >= reserveOut {
		return res, next, opErr(opSwap, ErrInsufficientLiquidity,
			"amount_out %d would drain reserve %d", amountOut, reserveOut)
	}

	newIn, err := e.math.add(reserveIn, req.AmountIn)
	if err != nil {
		return res, next, arithErr(opSwap, "reserve_in", err)
	}
	newOut := reserveOut - amountOut
	if req.Direction == AToB {
		next.ReserveA, next.ReserveB = newIn, newOut
	} else {
		next.ReserveB, next.ReserveA = newIn, newOut
	}
	next.Sequence++

	res = SwapResult{AmountIn: req.AmountIn, AmountOut: amountOut, FeeTaken: fee}
	return res, next, nil
}

// Swap takes amountIn from the trader into the input vault and pays the
// constant-product output from the other vault. The whole amountIn is
// credited to the input reserve while only the net-of-fee amount prices the
// trade, so the fee stays in the pool.
func (e *Engine) Swap(ctx context.Context, host Host, pool *Pool, trader solana.PublicKey, req SwapRequest) (*SwapResult, error) {
	res, next, err := e.planSwap(pool, req)
	if err != nil {
		e.rejected(pool, opSwap, err)
		return nil, err
	}

	assetIn, vaultIn, assetOut, vaultOut := pool.AssetA, pool.VaultA, pool.AssetB, pool.VaultB
	if req.Direction == BToA {
		assetIn, vaultIn, assetOut, vaultOut = pool.AssetB, pool.VaultB, pool.AssetA, pool.VaultA
	}

	if err := host.Transfer(ctx, assetIn, trader, vaultIn, res.AmountIn); err != nil {
		return nil, transferErr(opSwap, "input to vault", err)
	}
	if err := host.Transfer(ctx, assetOut, vaultOut, trader, res.AmountOut); err != nil {
		return nil, transferErr(opSwap, "output from vault", err)
	}

	*pool = next

	e.logger.WithFields(logrus.Fields{
		"pool":       pool.Address.String(),
		"direction":  req.Direction.String(),
		"amount_in":  res.AmountIn,
		"amount_out": res.AmountOut,
		"fee":        res.FeeTaken,
	}).Info("swap completed")

	return &res, nil
}

func (e *Engine) rejected(pool *Pool, op string, err error) {
	e.logger.WithFields(logrus.Fields{
		"pool": pool.Address.String(),
		"op":   op,
	}).WithError(err).Debug("operation rejected")
}

func arithErr(op, what string, err error) *Error {
	return &Error{Op: op, Kind: ErrArithmetic, Msg: what, Err: err}
}

func transferErr(op, what string, err error) *Error {
	return &Error{Op: op, Kind: ErrTransferFailed, Msg: what, Err: err}
}
