package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema DDL applied on startup. Idempotent so restarts are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		trade_id     BIGINT NOT NULL,
		product_id   TEXT NOT NULL,
		price        NUMERIC NOT NULL,
		size         NUMERIC NOT NULL,
		trade_time   TIMESTAMPTZ NOT NULL,
		long_party   INT NOT NULL,
		short_party  INT NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (product_id, trade_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_time ON trades (product_id, trade_time)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		cycle_id      UUID NOT NULL,
		product_id    TEXT NOT NULL,
		computed_at   TIMESTAMPTZ NOT NULL,
		party_id      INT NOT NULL,
		vwap          NUMERIC NOT NULL,
		net_quantity  NUMERIC NOT NULL,
		current_price NUMERIC NOT NULL,
		obligation    NUMERIC NOT NULL,
		currency      TEXT NOT NULL,
		degenerate    BOOLEAN NOT NULL,
		PRIMARY KEY (cycle_id, party_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_computed ON settlements (product_id, computed_at)`,
	`CREATE TABLE IF NOT EXISTS balance_snapshots (
		cycle_id    UUID NOT NULL,
		taken_at    TIMESTAMPTZ NOT NULL,
		party_id    INT NOT NULL,
		balance     NUMERIC NOT NULL,
		PRIMARY KEY (cycle_id, party_id)
	)`,
}

// EnsureSchema creates the settler tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
