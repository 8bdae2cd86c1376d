package models

import "time"

// Event kinds
const (
	EventInitialize = "initialize"
	EventDeposit    = "deposit"
	EventWithdraw   = "withdraw"
	EventSwap       = "swap"
)

// PoolEvent records one completed pool transition. Amounts are base units;
// which fields are set depends on Kind.
type PoolEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Pool      string    `json:"pool"`
	Pair      string    `json:"pair"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`

	AmountA     uint64 `json:"amount_a,string"`
	AmountB     uint64 `json:"amount_b,string"`
	ClaimAmount uint64 `json:"claim_amount,string"` // minted on deposit, burned on withdraw
	Direction   string `json:"direction,omitempty"`
	AmountIn    uint64 `json:"amount_in,string"`
	AmountOut   uint64 `json:"amount_out,string"`
	Fee         uint64 `json:"fee,string"`

	// Pool state after the transition.
	ReserveA    uint64 `json:"reserve_a,string"`
	ReserveB    uint64 `json:"reserve_b,string"`
	ClaimSupply uint64 `json:"claim_supply,string"`
}
