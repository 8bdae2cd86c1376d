package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	indexKey    = "amm:flags:index"
	valuePrefix = "amm:flag:"
)

// Keys are dotted names such as "amm.swaps_paused" or
// "pool.<address>.deposits_paused". Colons are reserved for Redis keys.
var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps feature flags in Redis. Pool operations consult it as kill
// switches: "amm.<switch>" applies to every pool and
// "pool.<address>.<switch>" to one.
type Store struct {
	client redis.Cmdable
}

var _ Checker = (*Store)(nil)

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key %q", key)
	}
	return nil
}

func flagKey(key string) string {
	return valuePrefix + key
}

func decodeFlag(raw string) (*Flag, error) {
	var f Flag
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag: %w", err)
	}
	return &f, nil
}

// Upsert sets key to value and indexes it.
func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	f := &Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}

	// Value and index change together
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, flagKey(key), b, 0)
	pipe.SAdd(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert flag %s: %w", key, err)
	}
	return f, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, flagKey(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("get flag %s: %w", key, err)
	}
	return decodeFlag(raw)
}

// List returns every indexed flag ordered by key. Entries whose value has
// disappeared or cannot be decoded are skipped.
func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags index: %w", err)
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if ValidateKey(k) == nil {
			redisKeys = append(redisKeys, flagKey(k))
		}
	}
	out := make([]*Flag, 0, len(redisKeys))
	if len(redisKeys) == 0 {
		return out, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget flags: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if f, err := decodeFlag(raw); err == nil {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, flagKey(key))
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flag %s: %w", key, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Enabled reports whether key is set to true. A missing flag is false.
func (s *Store) Enabled(ctx context.Context, key string) (bool, error) {
	f, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Value, nil
}

// GlobalKey names a switch that applies to every pool.
func GlobalKey(name string) string {
	return "amm." + name
}

// PoolKey names a switch for one pool.
func PoolKey(pool, name string) string {
	return "pool." + pool + "." + name
}

// Paused reports whether the named switch is on globally or for pool.
// A nil checker never pauses.
func Paused(ctx context.Context, c Checker, pool, name string) (bool, error) {
	if c == nil {
		return false, nil
	}
	for _, key := range []string{GlobalKey(name), PoolKey(pool, name)} {
		on, err := c.Enabled(ctx, key)
		if err != nil {
			return false, fmt.Errorf("check flag %s: %w", key, err)
		}
		if on {
			return true, nil
		}
	}
	return false, nil
}
