package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/models"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS pool_events (
		id String,
		kind LowCardinality(String),
		pool String,
		pair String,
		actor String,
		timestamp DateTime64(3),
		sequence UInt64,
		amount_a UInt64,
		amount_b UInt64,
		claim_amount UInt64,
		direction LowCardinality(String),
		amount_in UInt64,
		amount_out UInt64,
		fee UInt64,
		reserve_a UInt64,
		reserve_b UInt64,
		claim_supply UInt64
	) ENGINE = MergeTree()
	ORDER BY (pool, sequence)
`

// ClickHouseConfig holds connection settings for the event history store
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore appends pool events to a ClickHouse table.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

var _ storage.EventSink = (*ClickHouseStore)(nil)

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createEventsTable); err != nil {
		return nil, fmt.Errorf("failed to create pool_events table: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

func (c *ClickHouseStore) InsertEvent(ctx context.Context, ev *models.PoolEvent) error {
	query := `
		INSERT INTO pool_events (
			id, kind, pool, pair, actor, timestamp, sequence,
			amount_a, amount_b, claim_amount, direction, amount_in, amount_out, fee,
			reserve_a, reserve_b, claim_supply
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		ev.ID,
		ev.Kind,
		ev.Pool,
		ev.Pair,
		ev.Actor,
		ev.Timestamp,
		ev.Sequence,
		ev.AmountA,
		ev.AmountB,
		ev.ClaimAmount,
		ev.Direction,
		ev.AmountIn,
		ev.AmountOut,
		ev.Fee,
		ev.ReserveA,
		ev.ReserveB,
		ev.ClaimSupply,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// PublishEvent implements storage.EventSink.
func (c *ClickHouseStore) PublishEvent(ctx context.Context, ev *models.PoolEvent) error {
	return c.InsertEvent(ctx, ev)
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
