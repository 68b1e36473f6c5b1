package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`); err != nil {
		return fmt.Errorf("migrations table: %w", err)
	}

	const latest = 1

	cur, err := currentVersion(ctx, p.db)
	if err != nil {
		return err
	}
	for v := cur + 1; v <= latest; v++ {
		if err := apply(ctx, p.db, v); err != nil {
			return err
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations;`).Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func apply(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	switch version {
	case 1:
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS listings (
  id VARCHAR(255) PRIMARY KEY,
  seller_id VARCHAR(255) NOT NULL,
  title VARCHAR(255) NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status VARCHAR(50) NOT NULL DEFAULT 'draft',
  opening_price_cents BIGINT NOT NULL DEFAULT 0,
  reserve_price_cents BIGINT NOT NULL DEFAULT 0,
  auction_start_time TIMESTAMPTZ NOT NULL,
  auction_end_time TIMESTAMPTZ NOT NULL,
  current_high_bid_cents BIGINT NOT NULL DEFAULT 0,
  current_high_bidder_id VARCHAR(255),
  current_high_proxy_cents BIGINT NOT NULL DEFAULT 0,
  bid_count BIGINT NOT NULL DEFAULT 0,
  extension_count BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bids (
  id VARCHAR(255) PRIMARY KEY,
  listing_id VARCHAR(255) NOT NULL REFERENCES listings(id),
  bidder_id VARCHAR(255) NOT NULL,
  proxy_max_cents BIGINT NOT NULL,
  placed_at TIMESTAMPTZ NOT NULL,
  seq BIGINT NOT NULL,
  source VARCHAR(50) NOT NULL DEFAULT '',
  client_ip VARCHAR(64) NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  UNIQUE (listing_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_listings_due_start ON listings(status, auction_start_time);
CREATE INDEX IF NOT EXISTS idx_listings_due_end ON listings(status, auction_end_time);
CREATE INDEX IF NOT EXISTS idx_bids_listing_id ON bids(listing_id);
CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
`); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1);`, version); err != nil {
		return err
	}
	return tx.Commit()
}
