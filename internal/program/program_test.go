package program

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminator(t *testing.T) {
	d := Discriminator(InstructionSwap)
	assert.Equal(t, "f8c69e91e17587c8", hex.EncodeToString(d[:]))

	d = Discriminator(InstructionInitializePool)
	assert.Equal(t, "5fb40aac54aee828", hex.EncodeToString(d[:]))

	assert.Equal(t, "f19a6d0411b16dbc", hex.EncodeToString(accountDiscriminator("Pool")))
}

func TestDerivePool_OrderInsensitive(t *testing.T) {
	x := solana.NewWallet().PublicKey()
	y := solana.NewWallet().PublicKey()

	p1, err := DerivePool(DefaultProgramID, x, y)
	require.NoError(t, err)
	p2, err := DerivePool(DefaultProgramID, y, x)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, PairKey(x, y), PairKey(y, x))

	ids := []solana.PublicKey{p1.Pool, p1.VaultA, p1.VaultB, p1.ClaimMint}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			assert.False(t, ids[i].Equals(ids[j]))
		}
	}

	a, b := SortMints(x, y)
	assert.Equal(t, a, p1.MintA)
	assert.Equal(t, b, p1.MintB)
	assert.Negative(t, bytes.Compare(a[:], b[:]))
}

func TestDerivePool_Invalid(t *testing.T) {
	x := solana.NewWallet().PublicKey()

	_, err := DerivePool(DefaultProgramID, x, x)
	assert.Error(t, err)

	_, err = DerivePool(DefaultProgramID, x, solana.PublicKey{})
	assert.Error(t, err)
}

func TestSwapInstruction(t *testing.T) {
	addrs, err := DerivePool(DefaultProgramID, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	user := solana.NewWallet().PublicKey()

	ix, err := NewBuilder(solana.PublicKey{}).Swap(user, addrs, SwapArgs{AmountIn: 10000, AmountOutMin: 19000, AToB: true})
	require.NoError(t, err)

	assert.Equal(t, DefaultProgramID, ix.ProgramID())
	accounts := ix.Accounts()
	require.Len(t, accounts, 15)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, addrs.Pool, accounts[1].PublicKey)
	assert.Equal(t, Token2022ProgramID, accounts[14].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+8+8+1)
	assert.Equal(t, uint64(10000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(19000), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, byte(1), data[24])

	dec, err := DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionSwap, dec.Name)
	assert.Equal(t, &SwapArgs{AmountIn: 10000, AmountOutMin: 19000, AToB: true}, dec.Args)
}

func TestLiquidityInstructions(t *testing.T) {
	addrs, err := DerivePool(DefaultProgramID, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	user := solana.NewWallet().PublicKey()
	b := NewBuilder(DefaultProgramID)

	add, err := b.AddLiquidity(user, addrs, AddLiquidityArgs{AmountADesired: 5000, AmountBDesired: 20000})
	require.NoError(t, err)
	assert.Len(t, add.Accounts(), 11)
	data, err := add.Data()
	require.NoError(t, err)
	dec, err := DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, &AddLiquidityArgs{AmountADesired: 5000, AmountBDesired: 20000}, dec.Args)

	rm, err := b.RemoveLiquidity(user, addrs, RemoveLiquidityArgs{LpTokenAmount: 4500, AmountAMin: 1})
	require.NoError(t, err)
	data, err = rm.Data()
	require.NoError(t, err)
	dec, err = DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionRemoveLiquidity, dec.Name)
	assert.Equal(t, &RemoveLiquidityArgs{LpTokenAmount: 4500, AmountAMin: 1}, dec.Args)

	initIx, err := b.InitializePool(user, addrs, 30)
	require.NoError(t, err)
	assert.Len(t, initIx.Accounts(), 9)
	data, err = initIx.Data()
	require.NoError(t, err)
	assert.Len(t, data, 16)
	dec, err = DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, &InitializePoolArgs{FeeRate: 30}, dec.Args)
}

func TestDecodeInstruction_Errors(t *testing.T) {
	_, err := DecodeInstruction([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = DecodeInstruction(make([]byte, 16))
	assert.Error(t, err)
}

func TestPoolAccountCodec(t *testing.T) {
	acc := &PoolAccount{
		Authority:     solana.NewWallet().PublicKey(),
		TokenAMint:    solana.NewWallet().PublicKey(),
		TokenBMint:    solana.NewWallet().PublicKey(),
		TokenAVault:   solana.NewWallet().PublicKey(),
		TokenBVault:   solana.NewWallet().PublicKey(),
		LpTokenMint:   solana.NewWallet().PublicKey(),
		FeeRate:       30,
		TokenAReserve: 10000,
		TokenBReserve: 20000,
		LpTokenSupply: 9000,
		Bump:          253,
	}

	data, err := EncodePoolAccount(acc)
	require.NoError(t, err)
	assert.Len(t, data, PoolAccountSize)

	got, err := DecodePoolAccount(data)
	require.NoError(t, err)
	assert.Equal(t, acc, got)

	addr := solana.NewWallet().PublicKey()
	pool := got.ToPool(addr)
	assert.Equal(t, uint64(9000), pool.ClaimSupply)
	assert.Equal(t, acc, PoolAccountFrom(pool))

	_, err = DecodePoolAccount(make([]byte, PoolAccountSize))
	assert.Error(t, err)
}
