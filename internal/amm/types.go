package amm

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Pool is the accounting record of one asset-pair AMM instance.
//
// Reserves mirror the vault balances exactly and are only ever changed by
// the Engine; they are never re-read from the vaults during a transition.
type Pool struct {
	Address    solana.PublicKey `json:"address"`
	Authority  solana.PublicKey `json:"authority"`
	AssetA     solana.PublicKey `json:"asset_a"`
	AssetB     solana.PublicKey `json:"asset_b"`
	VaultA     solana.PublicKey `json:"vault_a"`
	VaultB     solana.PublicKey `json:"vault_b"`
	ClaimAsset solana.PublicKey `json:"claim_asset"`
	FeeRateBps uint64           `json:"fee_rate_bps"`
	Bump       uint8            `json:"bump"`

	ReserveA    uint64 `json:"reserve_a,string"`
	ReserveB    uint64 `json:"reserve_b,string"`
	ClaimSupply uint64 `json:"claim_supply,string"`

	// Sequence counts completed transitions, including initialize.
	Sequence uint64 `json:"sequence"`
}

// Empty reports whether the pool holds no liquidity.
func (p *Pool) Empty() bool {
	return p.ReserveA == 0 && p.ReserveB == 0
}

// CheckInvariants verifies that the pool is either empty or fully seeded.
func (p *Pool) CheckInvariants() error {
	za, zb, zs := p.ReserveA == 0, p.ReserveB == 0, p.ClaimSupply == 0
	if za != zb || zb != zs {
		return fmt.Errorf("pool %s: inconsistent state reserve_a=%d reserve_b=%d claim_supply=%d",
			p.Address, p.ReserveA, p.ReserveB, p.ClaimSupply)
	}
	return nil
}

// Reserves returns (reserveIn, reserveOut) for a swap direction.
func (p *Pool) Reserves(dir Direction) (reserveIn, reserveOut uint64) {
	if dir == AToB {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

// Direction selects which side of the pool a swap pays into.
type Direction int

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	if d == BToA {
		return "b_to_a"
	}
	return "a_to_b"
}

// ParseDirection accepts "a_to_b" / "b_to_a" (and the short forms "ab"/"ba").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a_to_b", "ab", "a2b":
		return AToB, nil
	case "b_to_a", "ba", "b2a":
		return BToA, nil
	default:
		return AToB, fmt.Errorf("invalid swap direction %q", s)
	}
}

// InitParams binds a new pool to its assets and freshly provisioned
// custodial identifiers. The binding is permanent.
type InitParams struct {
	Address    solana.PublicKey
	Authority  solana.PublicKey // creator; informational only
	AssetA     solana.PublicKey
	AssetB     solana.PublicKey
	VaultA     solana.PublicKey
	VaultB     solana.PublicKey
	ClaimAsset solana.PublicKey
	Bump       uint8
	FeeRateBps uint64
}

type DepositRequest struct {
	AmountADesired uint64 `json:"amount_a_desired,string"`
	AmountBDesired uint64 `json:"amount_b_desired,string"`
	AmountAMin     uint64 `json:"amount_a_min,string"`
	AmountBMin     uint64 `json:"amount_b_min,string"`
}

type DepositResult struct {
	AmountA     uint64 `json:"amount_a,string"`
	AmountB     uint64 `json:"amount_b,string"`
	ClaimMinted uint64 `json:"claim_minted,string"`
	Seeded      bool   `json:"seeded"`
}

type WithdrawRequest struct {
	ClaimAmount uint64 `json:"claim_amount,string"`
	AmountAMin  uint64 `json:"amount_a_min,string"`
	AmountBMin  uint64 `json:"amount_b_min,string"`
}

type WithdrawResult struct {
	AmountA uint64 `json:"amount_a,string"`
	AmountB uint64 `json:"amount_b,string"`
}

type SwapRequest struct {
	AmountIn     uint64    `json:"amount_in,string"`
	AmountOutMin uint64    `json:"amount_out_min,string"`
	Direction    Direction `json:"-"`
}

type SwapResult struct {
	AmountIn  uint64 `json:"amount_in,string"`
	AmountOut uint64 `json:"amount_out,string"`
	FeeTaken  uint64 `json:"fee_taken,string"`
}

// AssetTransfer moves an amount of an asset between two custodial balances.
// Implementations may run the asset issuer's validation callback and must
// return an error if it rejects the movement.
type AssetTransfer interface {
	Transfer(ctx context.Context, asset, from, to solana.PublicKey, amount uint64) error
}

// IssuanceAuthority mints and burns a pool's claim asset on the pool's
// behalf.
type IssuanceAuthority interface {
	Mint(ctx context.Context, claimAsset, to solana.PublicKey, amount uint64) error
	Burn(ctx context.Context, claimAsset, from solana.PublicKey, amount uint64) error
}

// Host is everything an operation needs from the surrounding ledger.
type Host interface {
	AssetTransfer
	IssuanceAuthority
}
