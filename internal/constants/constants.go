package constants

import "time"

// Redis keys
const (
	RedisKeyPoolPrefix   = "amm:pool:"
	RedisKeyPoolIndex    = "amm:pools"
	RedisKeyPairPrefix   = "amm:pair:"
	RedisKeyEventsPrefix = "amm:events:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelEvents     = "amm:events"
	PubSubPoolChannelPrefix = "amm:events:pool:"
	PubSubKindChannelPrefix = "amm:events:kind:"
)

// Limits
const (
	MaxRecentEvents     = 100
	DefaultEventsLimit  = 50
	DefaultSlippageBps  = 50
	DefaultMaxImpactBps = 1000
)

// Timeouts
const (
	EventPublishTimeout = 3 * time.Second
	ReconcileRPCTimeout = 10 * time.Second
)

// Pool feature flags, keyed "pool.<address>.<suffix>" or "amm.<suffix>"
// for every pool.
const (
	FlagDepositsPaused  = "deposits_paused"
	FlagWithdrawsPaused = "withdrawals_paused"
	FlagSwapsPaused     = "swaps_paused"
)
