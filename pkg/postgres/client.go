// Package postgres wraps the primary relational store: a pooled database
// client with a transaction helper, the per-key advisory locking primitive
// used to serialize reindex jobs, and a factory for the dedicated
// LISTEN/NOTIFY connection used by the CDC listener.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lib/pq"

	"github.com/gridstonehq/workspace-search/pkg/config"
)

// Client wraps the pooled connection to the primary store.
type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens a connection pool and verifies it with a ping.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping verifies the pooled connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// AdvisoryLockKey maps an arbitrary lock name to the bigint key space of
// pg_advisory_xact_lock. FNV-1a keeps the mapping stable per name;
// collision behaviour is delegated to Postgres.
func AdvisoryLockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// AcquireTxLock takes a transaction-scoped advisory lock for the named
// resource, failing immediately if another session holds it. The lock is
// released automatically when tx commits or rolls back.
func AcquireTxLock(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var acquired bool
	row := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1)", AdvisoryLockKey(name))
	if err := row.Scan(&acquired); err != nil {
		return false, fmt.Errorf("acquiring advisory lock %q: %w", name, err)
	}
	return acquired, nil
}

// NewListener opens the dedicated LISTEN/NOTIFY connection, distinct from
// the pooled connections used for ordinary queries. Connection state
// changes are logged through the provided callback by lib/pq.
func (c *Client) NewListener(onEvent pq.EventCallbackType) *pq.Listener {
	return pq.NewListener(
		c.cfg.DSN(),
		c.cfg.ListenerMinReconnect,
		c.cfg.ListenerMaxReconnect,
		onEvent,
	)
}
