// Package quote holds display-side helpers for swap previews. Nothing here
// feeds back into pool accounting; floats are for presentation only.
package quote

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
)

// Quote is a priced swap preview.
type Quote struct {
	Direction      string  `json:"direction"`
	AmountIn       uint64  `json:"amount_in,string"`
	AmountOut      uint64  `json:"amount_out,string"`
	Fee            uint64  `json:"fee,string"`
	MinAmountOut   uint64  `json:"min_amount_out,string"`
	SlippageBps    uint16  `json:"slippage_bps"`
	SpotPrice      float64 `json:"spot_price"`
	ExecutionPrice float64 `json:"execution_price"`
	PriceImpact    float64 `json:"price_impact"`
}

// Build prices res against the reserves it was computed from.
func Build(pool *amm.Pool, dir amm.Direction, res amm.SwapResult, slippageBps uint16) *Quote {
	reserveIn, reserveOut := pool.Reserves(dir)
	q := &Quote{
		Direction:    dir.String(),
		AmountIn:     res.AmountIn,
		AmountOut:    res.AmountOut,
		Fee:          res.FeeTaken,
		MinAmountOut: ApplySlippage(res.AmountOut, slippageBps),
		SlippageBps:  slippageBps,
		SpotPrice:    SpotPrice(reserveIn, reserveOut),
		PriceImpact:  PriceImpact(res.AmountIn, res.AmountOut, reserveIn, reserveOut),
	}
	if res.AmountIn > 0 {
		q.ExecutionPrice = float64(res.AmountOut) / float64(res.AmountIn)
	}
	return q
}

// SpotPrice is units of output per unit of input at the current reserves.
func SpotPrice(reserveIn, reserveOut uint64) float64 {
	if reserveIn == 0 {
		return 0
	}
	return float64(reserveOut) / float64(reserveIn)
}

// PriceImpact is 1 - executionRate/idealRate, floored at 0. It includes
// the fee.
func PriceImpact(amountIn, amountOut, reserveIn, reserveOut uint64) float64 {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0
	}
	idealRate := float64(reserveOut) / float64(reserveIn)
	executionRate := float64(amountOut) / float64(amountIn)
	return math.Max(0, 1-(executionRate/idealRate))
}

// ApplySlippage calculates minimum output with slippage tolerance
// slippageBps: basis points (e.g., 100 = 1%, 50 = 0.5%)
func ApplySlippage(amountOut uint64, slippageBps uint16) uint64 {
	if slippageBps >= 10000 {
		return 0
	}
	// minOut = amountOut * (10000 - slippageBps) / 10000
	v := new(uint256.Int).Mul(uint256.NewInt(amountOut), uint256.NewInt(10000-uint64(slippageBps)))
	return v.Div(v, uint256.NewInt(10000)).Uint64()
}

// ValidatePriceImpact checks if price impact exceeds threshold
func ValidatePriceImpact(priceImpact float64, maxImpactBps uint16) error {
	maxImpact := float64(maxImpactBps) / 10000.0
	if priceImpact > maxImpact {
		return fmt.Errorf("price impact %.4f%% exceeds max %.4f%%",
			priceImpact*100, maxImpact*100)
	}
	return nil
}

// FeeBps converts a fee fraction to basis points, rounding down.
func FeeBps(feeNumerator, feeDenominator uint64) uint16 {
	if feeDenominator == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(feeNumerator), uint256.NewInt(10000))
	v.Div(v, uint256.NewInt(feeDenominator))
	if !v.IsUint64() || v.Uint64() > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v.Uint64())
}
