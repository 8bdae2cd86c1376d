package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
)

// MaxMembers is how many accounts fit in one whitelist account on chain:
// 1000 bytes less discriminator, authority and vec length, 32 bytes each.
const MaxMembers = (1000 - 8 - 32 - 4) / 32

var (
	ErrDestinationNotWhitelisted = errors.New("destination account is not whitelisted")
	ErrAlreadyWhitelisted        = errors.New("account is already whitelisted")
	ErrNotWhitelisted            = errors.New("account is not whitelisted")
	ErrWhitelistFull             = errors.New("whitelist is full")
)

// Members stores the whitelist of each asset.
type Members interface {
	Add(ctx context.Context, asset, account solana.PublicKey) error
	Remove(ctx context.Context, asset, account solana.PublicKey) error
	Contains(ctx context.Context, asset, account solana.PublicKey) (bool, error)
	List(ctx context.Context, asset solana.PublicKey) ([]solana.PublicKey, error)
}

// MemoryMembers is an in-process Members.
type MemoryMembers struct {
	mu   sync.RWMutex
	sets map[solana.PublicKey]map[solana.PublicKey]struct{}
}

func NewMemoryMembers() *MemoryMembers {
	return &MemoryMembers{sets: make(map[solana.PublicKey]map[solana.PublicKey]struct{})}
}

func (m *MemoryMembers) Add(_ context.Context, asset, account solana.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[asset]
	if set == nil {
		set = make(map[solana.PublicKey]struct{})
		m.sets[asset] = set
	}
	if _, ok := set[account]; ok {
		return ErrAlreadyWhitelisted
	}
	if len(set) >= MaxMembers {
		return ErrWhitelistFull
	}
	set[account] = struct{}{}
	return nil
}

func (m *MemoryMembers) Remove(_ context.Context, asset, account solana.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[asset][account]; !ok {
		return ErrNotWhitelisted
	}
	delete(m.sets[asset], account)
	return nil
}

func (m *MemoryMembers) Contains(_ context.Context, asset, account solana.PublicKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[asset][account]
	return ok, nil
}

func (m *MemoryMembers) List(_ context.Context, asset solana.PublicKey) ([]solana.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(m.sets[asset]))
	for k := range m.sets[asset] {
		out = append(out, k)
	}
	sortKeys(out)
	return out, nil
}

func sortKeys(keys []solana.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}

const keyPrefix = "amm:whitelist:"

// RedisMembers keeps each asset's whitelist in a Redis set.
type RedisMembers struct {
	client redis.Cmdable
}

func NewRedisMembers(client redis.Cmdable) (*RedisMembers, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisMembers{client: client}, nil
}

func setKey(asset solana.PublicKey) string {
	return keyPrefix + asset.String()
}

// addScript checks membership, then capacity, then adds, in one step.
// Returns 0 when added, 1 when already present, 2 when full.
var addScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
	return 1
end
if redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 2
end
redis.call('SADD', KEYS[1], ARGV[1])
return 0
`)

func (r *RedisMembers) Add(ctx context.Context, asset, account solana.PublicKey) error {
	res, err := addScript.Run(ctx, r.client, []string{setKey(asset)}, account.String(), MaxMembers).Int()
	if err != nil {
		return fmt.Errorf("whitelist add: %w", err)
	}
	switch res {
	case 1:
		return ErrAlreadyWhitelisted
	case 2:
		return ErrWhitelistFull
	}
	return nil
}

func (r *RedisMembers) Remove(ctx context.Context, asset, account solana.PublicKey) error {
	removed, err := r.client.SRem(ctx, setKey(asset), account.String()).Result()
	if err != nil {
		return fmt.Errorf("whitelist remove: %w", err)
	}
	if removed == 0 {
		return ErrNotWhitelisted
	}
	return nil
}

func (r *RedisMembers) Contains(ctx context.Context, asset, account solana.PublicKey) (bool, error) {
	ok, err := r.client.SIsMember(ctx, setKey(asset), account.String()).Result()
	if err != nil {
		return false, fmt.Errorf("whitelist lookup: %w", err)
	}
	return ok, nil
}

func (r *RedisMembers) List(ctx context.Context, asset solana.PublicKey) ([]solana.PublicKey, error) {
	vals, err := r.client.SMembers(ctx, setKey(asset)).Result()
	if err != nil {
		return nil, fmt.Errorf("whitelist list: %w", err)
	}
	out := make([]solana.PublicKey, 0, len(vals))
	for _, v := range vals {
		pk, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			continue
		}
		out = append(out, pk)
	}
	sortKeys(out)
	return out, nil
}

// WhitelistConfig holds configuration for the whitelist hook
type WhitelistConfig struct {
	Members Members
	// Enforce rejects transfers to accounts that are not listed. When false
	// the hook only logs, like the deployed program.
	Enforce bool
	Logger  *logrus.Logger
}

// Whitelist is a transfer hook that validates the destination owner of
// every transfer against a per-asset allow list.
type Whitelist struct {
	members Members
	enforce bool
	logger  *logrus.Logger

	mu     sync.RWMutex
	exempt map[solana.PublicKey]struct{}
}

func NewWhitelist(cfg WhitelistConfig) *Whitelist {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Members == nil {
		cfg.Members = NewMemoryMembers()
	}
	return &Whitelist{
		members: cfg.Members,
		enforce: cfg.Enforce,
		logger:  cfg.Logger,
		exempt:  make(map[solana.PublicKey]struct{}),
	}
}

// Exempt always allows transfers into account. Pool vaults are exempt.
func (w *Whitelist) Exempt(account solana.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exempt[account] = struct{}{}
}

func (w *Whitelist) isExempt(account solana.PublicKey) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.exempt[account]
	return ok
}

func (w *Whitelist) Enforcing() bool { return w.enforce }

func (w *Whitelist) Members() Members { return w.members }

// OnTransfer implements ledger.Hook.
func (w *Whitelist) OnTransfer(ctx context.Context, t ledger.Transfer) error {
	fields := logrus.Fields{
		"asset":       t.Asset.String(),
		"amount":      t.Amount,
		"destination": t.To.String(),
	}
	if !w.enforce || w.isExempt(t.To) {
		w.logger.WithFields(fields).Debug("transfer approved")
		return nil
	}

	ok, err := w.members.Contains(ctx, t.Asset, t.To)
	if err != nil {
		return err
	}
	if !ok {
		w.logger.WithFields(fields).Warn("transfer rejected")
		return ErrDestinationNotWhitelisted
	}
	w.logger.WithFields(fields).Debug("transfer approved")
	return nil
}
