package storage

import (
	"context"
	"errors"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
)

var (
	ErrNotFound   = errors.New("pool not found")
	ErrPoolExists = errors.New("pool already exists")
)

// PoolStore persists pool records
type PoolStore interface {
	// Create stores a new pool. Fails with ErrPoolExists if the address or
	// the mint pair is already taken.
	Create(ctx context.Context, pool *amm.Pool) error

	// Save overwrites an existing pool record
	Save(ctx context.Context, pool *amm.Pool) error

	// Get returns the pool at address or ErrNotFound
	Get(ctx context.Context, address solana.PublicKey) (*amm.Pool, error)

	// GetByPair finds a pool by its mints, in either order
	GetByPair(ctx context.Context, mintA, mintB solana.PublicKey) (*amm.Pool, error)

	// List returns every pool
	List(ctx context.Context) ([]*amm.Pool, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// EventSink receives completed pool events
type EventSink interface {
	PublishEvent(ctx context.Context, ev *models.PoolEvent) error
}

// EventLog serves the most recent events of a pool
type EventLog interface {
	RecentEvents(ctx context.Context, pool solana.PublicKey, limit int64) ([]*models.PoolEvent, error)
}

// EventHandler is a function that processes pool events
type EventHandler func(*models.PoolEvent)
