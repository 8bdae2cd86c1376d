package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
)

// MaxRecentEvents bounds the per-pool event list.
const MaxRecentEvents = constants.MaxRecentEvents

// MemoryStore keeps pools and recent events in process. Records are copied
// on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	pools  map[solana.PublicKey]amm.Pool
	pairs  map[string]solana.PublicKey
	events map[solana.PublicKey][]*models.PoolEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:  make(map[solana.PublicKey]amm.Pool),
		pairs:  make(map[string]solana.PublicKey),
		events: make(map[solana.PublicKey][]*models.PoolEvent),
	}
}

func (m *MemoryStore) Create(_ context.Context, pool *amm.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := program.PairKey(pool.AssetA, pool.AssetB)
	if _, ok := m.pools[pool.Address]; ok {
		return ErrPoolExists
	}
	if _, ok := m.pairs[pair]; ok {
		return ErrPoolExists
	}
	m.pools[pool.Address] = *pool
	m.pairs[pair] = pool.Address
	return nil
}

func (m *MemoryStore) Save(_ context.Context, pool *amm.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[pool.Address]; !ok {
		return ErrNotFound
	}
	m.pools[pool.Address] = *pool
	return nil
}

func (m *MemoryStore) Get(_ context.Context, address solana.PublicKey) (*amm.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetByPair(ctx context.Context, mintA, mintB solana.PublicKey) (*amm.Pool, error) {
	m.mu.RLock()
	addr, ok := m.pairs[program.PairKey(mintA, mintB)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, addr)
}

func (m *MemoryStore) List(_ context.Context) ([]*amm.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*amm.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (m *MemoryStore) PublishEvent(_ context.Context, ev *models.PoolEvent) error {
	addr, err := solana.PublicKeyFromBase58(ev.Pool)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	list := append([]*models.PoolEvent{&cp}, m.events[addr]...)
	if len(list) > MaxRecentEvents {
		list = list[:MaxRecentEvents]
	}
	m.events[addr] = list
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (m *MemoryStore) RecentEvents(_ context.Context, pool solana.PublicKey, limit int64) ([]*models.PoolEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.events[pool]
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	out := make([]*models.PoolEvent, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
