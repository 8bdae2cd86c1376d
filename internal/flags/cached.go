package flags

import (
	"context"
	"sync"
	"time"
)

// Cached wraps a Checker and remembers answers for ttl, so a burst of pool
// operations costs one lookup per switch instead of one per operation.
// Lookup errors are not cached.
type Cached struct {
	next Checker
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cachedEntry
}

type cachedEntry struct {
	on      bool
	expires time.Time
}

var _ Checker = (*Cached)(nil)

func NewCached(next Checker, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedEntry),
	}
}

func (c *Cached) Enabled(ctx context.Context, key string) (bool, error) {
	now := c.now()
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.on, nil
	}

	on, err := c.next.Enabled(ctx, key)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.entries[key] = cachedEntry{on: on, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return on, nil
}

// Invalidate drops the cached answer for key, e.g. right after it was
// changed through the API.
func (c *Cached) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
