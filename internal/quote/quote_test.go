package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
)

func TestApplySlippage(t *testing.T) {
	assert.Equal(t, uint64(19644), ApplySlippage(19743, 50))
	assert.Equal(t, uint64(19743), ApplySlippage(19743, 0))
	assert.Equal(t, uint64(0), ApplySlippage(19743, 10000))
	assert.Equal(t, uint64(18446744073709551615/2), ApplySlippage(18446744073709551615, 5000))
}

func TestPriceImpact(t *testing.T) {
	assert.Zero(t, PriceImpact(0, 0, 100, 100))
	assert.InDelta(t, 0.5, PriceImpact(1000, 500, 1000, 1000), 1e-9)
	assert.Zero(t, PriceImpact(10, 20, 1000, 1000), "favorable execution floors at zero")
}

func TestValidatePriceImpact(t *testing.T) {
	assert.NoError(t, ValidatePriceImpact(0.01, 100))
	err := ValidatePriceImpact(0.02, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestFeeBps(t *testing.T) {
	assert.Equal(t, uint16(30), FeeBps(3, 1000))
	assert.Equal(t, uint16(0), FeeBps(3, 0))
	assert.Equal(t, uint16(25), FeeBps(25, 10000))
}

func TestBuild(t *testing.T) {
	pool := &amm.Pool{ReserveA: 1_000_000, ReserveB: 2_000_000}
	res := amm.SwapResult{AmountIn: 10000, AmountOut: 19743, FeeTaken: 30}

	q := Build(pool, amm.AToB, res, 100)
	assert.Equal(t, "a_to_b", q.Direction)
	assert.Equal(t, uint64(19545), q.MinAmountOut)
	assert.InDelta(t, 2.0, q.SpotPrice, 1e-9)
	assert.InDelta(t, 1.9743, q.ExecutionPrice, 1e-9)
	assert.InDelta(t, 0.01285, q.PriceImpact, 1e-9)

	q = Build(pool, amm.BToA, amm.SwapResult{}, 0)
	assert.InDelta(t, 0.5, q.SpotPrice, 1e-9)
	assert.Zero(t, q.ExecutionPrice)
}
