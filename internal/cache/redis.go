package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

// RedisPoolStore keeps pool records and recent events in Redis.
//
//	amm:pool:<address>    pool JSON
//	amm:pools             set of pool addresses
//	amm:pair:<a>:<b>      pool address for a sorted mint pair
//	amm:events:<address>  recent events, newest first
type RedisPoolStore struct {
	client redis.Cmdable
	logger *logrus.Logger
}

var (
	_ storage.PoolStore = (*RedisPoolStore)(nil)
	_ storage.EventSink = (*RedisPoolStore)(nil)
	_ storage.EventLog  = (*RedisPoolStore)(nil)
)

func NewRedisPoolStore(client redis.Cmdable, logger *logrus.Logger) (*RedisPoolStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisPoolStore{client: client, logger: logger}, nil
}

func poolKey(addr solana.PublicKey) string {
	return constants.RedisKeyPoolPrefix + addr.String()
}

func pairKey(a, b solana.PublicKey) string {
	return constants.RedisKeyPairPrefix + program.PairKey(a, b)
}

func eventsKey(addr solana.PublicKey) string {
	return constants.RedisKeyEventsPrefix + addr.String()
}

func (r *RedisPoolStore) Create(ctx context.Context, pool *amm.Pool) error {
	b, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	pk := pairKey(pool.AssetA, pool.AssetB)
	ok, err := r.client.SetNX(ctx, pk, pool.Address.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("claim pair: %w", err)
	}
	if !ok {
		return storage.ErrPoolExists
	}

	ok, err = r.client.SetNX(ctx, poolKey(pool.Address), b, 0).Result()
	if err != nil || !ok {
		_ = r.client.Del(ctx, pk).Err()
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		return storage.ErrPoolExists
	}

	if err := r.client.SAdd(ctx, constants.RedisKeyPoolIndex, pool.Address.String()).Err(); err != nil {
		return fmt.Errorf("index pool: %w", err)
	}

	r.logger.WithField("pool", pool.Address.String()).Debug("pool record created")
	return nil
}

func (r *RedisPoolStore) Save(ctx context.Context, pool *amm.Pool) error {
	b, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}
	ok, err := r.client.SetXX(ctx, poolKey(pool.Address), b, 0).Result()
	if err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	if !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (r *RedisPoolStore) Get(ctx context.Context, address solana.PublicKey) (*amm.Pool, error) {
	val, err := r.client.Get(ctx, poolKey(address)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}

	var p amm.Pool
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pool: %w", err)
	}
	return &p, nil
}

func (r *RedisPoolStore) GetByPair(ctx context.Context, mintA, mintB solana.PublicKey) (*amm.Pool, error) {
	val, err := r.client.Get(ctx, pairKey(mintA, mintB)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pair: %w", err)
	}
	addr, err := solana.PublicKeyFromBase58(val)
	if err != nil {
		return nil, fmt.Errorf("corrupt pair index: %w", err)
	}
	return r.Get(ctx, addr)
}

func (r *RedisPoolStore) List(ctx context.Context) ([]*amm.Pool, error) {
	addrs, err := r.client.SMembers(ctx, constants.RedisKeyPoolIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list pools index: %w", err)
	}
	if len(addrs) == 0 {
		return []*amm.Pool{}, nil
	}

	keys := make([]string, 0, len(addrs))
	for _, a := range addrs {
		keys = append(keys, constants.RedisKeyPoolPrefix+a)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget pools: %w", err)
	}

	out := make([]*amm.Pool, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p amm.Pool
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			r.logger.WithError(err).Warn("skipping unreadable pool record")
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// PublishEvent prepends ev to the pool's recent list and trims it.
func (r *RedisPoolStore) PublishEvent(ctx context.Context, ev *models.PoolEvent) error {
	addr, err := solana.PublicKeyFromBase58(ev.Pool)
	if err != nil {
		return fmt.Errorf("event pool: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, eventsKey(addr), b)
	pipe.LTrim(ctx, eventsKey(addr), 0, constants.MaxRecentEvents-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

func (r *RedisPoolStore) RecentEvents(ctx context.Context, pool solana.PublicKey, limit int64) ([]*models.PoolEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentEvents {
		limit = constants.MaxRecentEvents
	}
	vals, err := r.client.LRange(ctx, eventsKey(pool), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	out := make([]*models.PoolEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.PoolEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (r *RedisPoolStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (r *RedisPoolStore) Close() error {
	return nil
}
