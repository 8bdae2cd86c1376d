package program

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
)

// PoolAccountSize is the on-chain size of a pool account, discriminator included.
const PoolAccountSize = 8 + 32*6 + 8*4 + 1

// PoolAccount is the on-chain pool state layout.
type PoolAccount struct {
	Authority     solana.PublicKey
	TokenAMint    solana.PublicKey
	TokenBMint    solana.PublicKey
	TokenAVault   solana.PublicKey
	TokenBVault   solana.PublicKey
	LpTokenMint   solana.PublicKey
	FeeRate       uint64
	TokenAReserve uint64
	TokenBReserve uint64
	LpTokenSupply uint64
	Bump          uint8
}

func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// DecodePoolAccount parses raw pool account data.
func DecodePoolAccount(data []byte) (*PoolAccount, error) {
	if len(data) < PoolAccountSize {
		return nil, fmt.Errorf("pool account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], accountDiscriminator("Pool")) {
		return nil, fmt.Errorf("not a pool account")
	}
	var acc PoolAccount
	if err := bin.UnmarshalBorsh(&acc, data[8:PoolAccountSize]); err != nil {
		return nil, fmt.Errorf("decode pool account: %w", err)
	}
	return &acc, nil
}

// EncodePoolAccount serializes a pool account with its discriminator.
func EncodePoolAccount(acc *PoolAccount) ([]byte, error) {
	body, err := bin.MarshalBorsh(acc)
	if err != nil {
		return nil, fmt.Errorf("encode pool account: %w", err)
	}
	return append(accountDiscriminator("Pool"), body...), nil
}

// ToPool converts the on-chain layout into the engine's record.
func (a *PoolAccount) ToPool(address solana.PublicKey) *amm.Pool {
	return &amm.Pool{
		Address:     address,
		Authority:   a.Authority,
		AssetA:      a.TokenAMint,
		AssetB:      a.TokenBMint,
		VaultA:      a.TokenAVault,
		VaultB:      a.TokenBVault,
		ClaimAsset:  a.LpTokenMint,
		FeeRateBps:  a.FeeRate,
		Bump:        a.Bump,
		ReserveA:    a.TokenAReserve,
		ReserveB:    a.TokenBReserve,
		ClaimSupply: a.LpTokenSupply,
	}
}

// PoolAccountFrom is the inverse of ToPool.
func PoolAccountFrom(p *amm.Pool) *PoolAccount {
	return &PoolAccount{
		Authority:     p.Authority,
		TokenAMint:    p.AssetA,
		TokenBMint:    p.AssetB,
		TokenAVault:   p.VaultA,
		TokenBVault:   p.VaultB,
		LpTokenMint:   p.ClaimAsset,
		FeeRate:       p.FeeRateBps,
		TokenAReserve: p.ReserveA,
		TokenBReserve: p.ReserveB,
		LpTokenSupply: p.ClaimSupply,
		Bump:          p.Bump,
	}
}
