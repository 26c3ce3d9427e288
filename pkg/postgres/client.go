// Package postgres opens the catalog database pool over lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/resilience"
	_ "github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// connectRetry covers a database that is still starting next to the
// service, as in a compose stack.
var connectRetry = resilience.RetryConfig{
	MaxAttempts:  4,
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Second,
	Multiplier:   2,
}

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and waits until the server answers a ping.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = resilience.Retry(ctx, "postgres connect", connectRetry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	stats := c.DB.Stats()
	slog.Debug("closing postgres pool", "open", stats.OpenConnections, "wait_count", stats.WaitCount)
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Check is a readiness check. A reachable database whose pool is saturated
// is reported degraded.
func (c *Client) Check(ctx context.Context) health.ComponentHealth {
	if err := c.Ping(ctx); err != nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
	}
	stats := c.DB.Stats()
	msg := fmt.Sprintf("%d open, %d in use", stats.OpenConnections, stats.InUse)
	if limit := stats.MaxOpenConnections; limit > 0 && stats.InUse >= limit {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "pool saturated: " + msg}
	}
	return health.ComponentHealth{Status: health.StatusUp, Message: msg}
}

// InTx runs fn in a transaction, rolling back when fn fails.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
