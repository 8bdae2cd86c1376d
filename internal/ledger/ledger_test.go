package ledger

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

func newTestLedger() *Ledger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(Config{Logger: logger})
}

func TestCreditAndTransfer(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()

	require.NoError(t, l.Credit(ctx, asset, alice, 1000))
	assert.Equal(t, uint64(1000), l.Balance(asset, alice))
	assert.Equal(t, uint64(1000), l.Supply(asset))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(alice).Transfer(ctx, asset, alice, bob, 400)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(600), l.Balance(asset, alice))
	assert.Equal(t, uint64(400), l.Balance(asset, bob))
}

func TestTransfer_RequiresSignature(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 1000))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(bob).Transfer(ctx, asset, alice, bob, 1)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint64(1000), l.Balance(asset, alice))
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 10))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(alice).Transfer(ctx, asset, alice, bob, 11)
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestVaultAuthority(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, pool, vault, user := newKey(), newKey(), newKey(), newKey()
	l.RegisterVault(vault, pool)
	require.NoError(t, l.Credit(ctx, asset, vault, 500))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(user).Transfer(ctx, asset, vault, user, 100)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(user, pool).Transfer(ctx, asset, vault, user, 100)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(400), l.Balance(asset, vault))
}

func TestMintBurn(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	claim, pool, user := newKey(), newKey(), newKey()

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(user, pool).Mint(ctx, claim, user, 10)
	})
	assert.ErrorIs(t, err, ErrUnauthorized, "no issuer registered")

	l.RegisterIssuer(claim, pool)
	err = l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(user, pool).Mint(ctx, claim, user, 10)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), l.Balance(claim, user))
	assert.Equal(t, uint64(10), l.Supply(claim))

	err = l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(pool).Burn(ctx, claim, user, 4)
	})
	assert.ErrorIs(t, err, ErrUnauthorized, "holder must sign")

	err = l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(user, pool).Burn(ctx, claim, user, 4)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), l.Balance(claim, user))
	assert.Equal(t, uint64(6), l.Supply(claim))
}

func TestAtomic_Rollback(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 1000))

	boom := errors.New("boom")
	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		s := tx.As(alice)
		require.NoError(t, s.Transfer(ctx, asset, alice, bob, 300))
		require.NoError(t, s.Transfer(ctx, asset, alice, bob, 300))
		assert.Equal(t, uint64(600), l.Balance(asset, bob))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1000), l.Balance(asset, alice))
	assert.Zero(t, l.Balance(asset, bob))
}

func TestAtomic_NestedJoinsOuter(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 1000))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.As(alice).Transfer(ctx, asset, alice, bob, 100))

		inner := l.Atomic(ctx, func(ctx context.Context, inner *Tx) error {
			assert.Same(t, tx, inner)
			require.NoError(t, inner.As(alice).Transfer(ctx, asset, alice, bob, 200))
			return errors.New("inner failed")
		})
		assert.Error(t, inner)
		assert.Equal(t, uint64(100), l.Balance(asset, bob), "only the inner change is undone")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(900), l.Balance(asset, alice))
	assert.Equal(t, uint64(100), l.Balance(asset, bob))
}

func TestHook_RejectsAndUndoes(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob, carol := newKey(), newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 1000))

	var seen []Transfer
	l.RegisterHook(asset, HookFunc(func(_ context.Context, tr Transfer) error {
		seen = append(seen, tr)
		if tr.To.Equals(carol) {
			return errors.New("carol is blocked")
		}
		return nil
	}))

	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		s := tx.As(alice)
		require.NoError(t, s.Transfer(ctx, asset, alice, bob, 10))
		err := s.Transfer(ctx, asset, alice, carol, 10)
		assert.Error(t, err)
		assert.Zero(t, l.Balance(asset, carol))
		assert.Equal(t, uint64(10), l.Balance(asset, bob))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.Equal(t, Transfer{Asset: asset, From: alice, To: bob, Amount: 10}, seen[0])

	l.RegisterHook(asset, nil)
	err = l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.As(alice).Transfer(ctx, asset, alice, carol, 10)
	})
	require.NoError(t, err)
}

func TestTx_ClosedAfterAtomic(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice := newKey(), newKey()

	var leaked *Tx
	require.NoError(t, l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		leaked = tx
		_, ok := FromContext(ctx)
		assert.True(t, ok)
		return nil
	}))
	err := leaked.add(asset, alice, 1)
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestView(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	asset, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, l.Credit(ctx, asset, alice, 100))

	var seen uint64
	require.NoError(t, l.View(ctx, func(context.Context) error {
		seen = l.Balance(asset, alice)
		return nil
	}))
	assert.Equal(t, uint64(100), seen)

	// Inside a transaction View joins it instead of waiting for itself.
	err := l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.As(alice).Transfer(ctx, asset, alice, bob, 40))
		return l.View(ctx, func(context.Context) error {
			seen = l.Balance(asset, bob)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), seen)

	boom := errors.New("boom")
	assert.ErrorIs(t, l.View(ctx, func(context.Context) error { return boom }), boom)
}
