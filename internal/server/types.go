package server

import (
	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/quote"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK          bool   `json:"ok"`
	ProgramID   string `json:"program_id"`
	Arithmetic  string `json:"arithmetic"`
	StoreStatus string `json:"store"`
}

// CreatePoolRequest creates a pool for a mint pair
type CreatePoolRequest struct {
	MintA      string `json:"mint_a"`
	MintB      string `json:"mint_b"`
	FeeRateBps uint64 `json:"fee_rate_bps"`
	Authority  string `json:"authority,omitempty"`
}

// DepositRequest adds liquidity on behalf of user
type DepositRequest struct {
	User string `json:"user"`
	amm.DepositRequest
}

// WithdrawRequest removes liquidity on behalf of user
type WithdrawRequest struct {
	User string `json:"user"`
	amm.WithdrawRequest
}

// SwapRequest trades on behalf of user. Direction is "a_to_b" or "b_to_a".
type SwapRequest struct {
	User         string `json:"user"`
	Direction    string `json:"direction"`
	AmountIn     uint64 `json:"amount_in,string"`
	AmountOutMin uint64 `json:"amount_out_min,string"`
}

// DepositResponse is the outcome of a deposit and the pool after it
type DepositResponse struct {
	Result *amm.DepositResult `json:"result"`
	Pool   *amm.Pool          `json:"pool"`
}

// WithdrawResponse is the outcome of a withdrawal and the pool after it
type WithdrawResponse struct {
	Result *amm.WithdrawResult `json:"result"`
	Pool   *amm.Pool           `json:"pool"`
}

// SwapResponse is the outcome of a swap and the pool after it
type SwapResponse struct {
	Result *amm.SwapResult `json:"result"`
	Pool   *amm.Pool       `json:"pool"`
}

// AccountMeta is one account of an encoded instruction
type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// InstructionResponse is an unsigned program instruction
type InstructionResponse struct {
	ProgramID string        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      string        `json:"data"` // base64
}

// QuoteResponse previews a swap. Instruction is set when a user is given.
type QuoteResponse struct {
	*quote.Quote
	Instruction *InstructionResponse `json:"instruction,omitempty"`
}

// BalanceResponse is one ledger balance
type BalanceResponse struct {
	Asset   string `json:"asset"`
	Owner   string `json:"owner"`
	Balance uint64 `json:"balance,string"`
}

// FaucetRequest credits test funds
type FaucetRequest struct {
	Asset  string `json:"asset"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount,string"`
}

// WhitelistRequest adds an account to an asset's whitelist
type WhitelistRequest struct {
	Account string `json:"account"`
}

// WhitelistResponse lists an asset's whitelist
type WhitelistResponse struct {
	Asset    string   `json:"asset"`
	Enforced bool     `json:"enforced"`
	Accounts []string `json:"accounts"`
}

// FlagUpsertRequest represents a request to create or update a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest represents a request to update an existing feature flag
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}
