package amm

import (
	"context"
	"testing"
	"testing/quick"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(p *Pool) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(p.ReserveA), uint256.NewInt(p.ReserveB))
}

// seed brings a fresh pool to a random, valid non-empty state.
func seed(t *testing.T, e *Engine, fee uint16, a, b uint32) (*Pool, bool) {
	pool := newTestPool(t, e, uint64(fee)%(MaxFeeRateBps+1))
	_, err := e.Deposit(context.Background(), &fakeHost{}, pool, newKey(),
		DepositRequest{AmountADesired: uint64(a) + 1, AmountBDesired: uint64(b) + 1})
	return pool, err == nil
}

func TestProperty_SwapProductNonDecreasing(t *testing.T) {
	e := newTestEngine(ArithmeticWide)

	f := func(fee uint16, a, b, in uint32, bToA bool) bool {
		pool, ok := seed(t, e, fee, a, b)
		if !ok {
			return true
		}
		before := product(pool)
		dir := AToB
		if bToA {
			dir = BToA
		}
		if _, err := e.Swap(context.Background(), &fakeHost{}, pool, newKey(), SwapRequest{AmountIn: uint64(in), Direction: dir}); err != nil {
			return true
		}
		return product(pool).Cmp(before) >= 0 && pool.CheckInvariants() == nil
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

func TestProperty_InvariantsHoldAcrossOperations(t *testing.T) {
	e := newTestEngine(ArithmeticWide)

	f := func(fee uint16, a, b uint32, ops []uint32) bool {
		pool, ok := seed(t, e, fee, a, b)
		if !ok {
			return true
		}
		ctx := context.Background()
		minted := pool.ClaimSupply
		burned := uint64(0)

		for i, v := range ops {
			amt := uint64(v)
			switch i % 3 {
			case 0:
				res, err := e.Deposit(ctx, &fakeHost{}, pool, newKey(), DepositRequest{AmountADesired: amt, AmountBDesired: amt * 3})
				if err == nil {
					minted += res.ClaimMinted
				}
			case 1:
				if _, err := e.Swap(ctx, &fakeHost{}, pool, newKey(), SwapRequest{AmountIn: amt, Direction: Direction(i / 3 % 2)}); err != nil {
					continue
				}
			case 2:
				claim := amt % (pool.ClaimSupply + 1)
				if _, err := e.Withdraw(ctx, &fakeHost{}, pool, newKey(), WithdrawRequest{ClaimAmount: claim}); err == nil {
					burned += claim
				}
			}
			if pool.CheckInvariants() != nil {
				return false
			}
			if pool.ClaimSupply != minted-burned {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 300}))
}

func TestProperty_RoundTripNeverFavorsDepositor(t *testing.T) {
	e := newTestEngine(ArithmeticWide)

	f := func(fee uint16, a, b, da, db uint32) bool {
		pool, ok := seed(t, e, fee, a, b)
		if !ok {
			return true
		}
		ctx := context.Background()
		dep, err := e.Deposit(ctx, &fakeHost{}, pool, newKey(), DepositRequest{AmountADesired: uint64(da), AmountBDesired: uint64(db)})
		if err != nil {
			return true
		}
		wd, err := e.Withdraw(ctx, &fakeHost{}, pool, newKey(), WithdrawRequest{ClaimAmount: dep.ClaimMinted})
		if err != nil {
			return false
		}
		return wd.AmountA <= dep.AmountA && wd.AmountB <= dep.AmountB
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

func TestProperty_FailedSwapLeavesPoolUntouched(t *testing.T) {
	e := newTestEngine(ArithmeticWide)

	f := func(a, b, in uint32) bool {
		pool, ok := seed(t, e, 30, a, b)
		if !ok {
			return true
		}
		before := *pool
		_, err := e.Swap(context.Background(), &fakeHost{}, pool, newKey(),
			SwapRequest{AmountIn: uint64(in), AmountOutMin: pool.ReserveB + 1, Direction: AToB})
		return assert.ErrorIs(t, err, ErrInsufficientOutputAmount) && before == *pool
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 200}))
}
