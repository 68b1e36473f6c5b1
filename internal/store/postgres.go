package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Postgres implements Store on PostgreSQL via database/sql and lib/pq.
// Per-listing serialization uses SELECT ... FOR UPDATE on the listing
// row; lifecycle CAS transitions use conditional UPDATE ... RETURNING.
type Postgres struct {
	db *sql.DB
}

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects, verifies the connection, and applies schema
// migrations.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// isRetryable reports whether the error is row-lock contention that a
// bounded retry can resolve.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}

func wrapStoreErr(op string, err error) error {
	if isRetryable(err) {
		return &domain.ConcurrencyError{Message: "listing row contention", Cause: err}
	}
	return &domain.PersistenceError{Op: op, Cause: err}
}

const listingColumns = `id, seller_id, title, description, status,
opening_price_cents, reserve_price_cents,
auction_start_time, auction_end_time,
current_high_bid_cents, current_high_bidder_id, current_high_proxy_cents,
bid_count, extension_count, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var bidder sql.NullString
	var status string
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &status,
		&l.OpeningPriceCents, &l.ReservePriceCents,
		&l.AuctionStartTime, &l.AuctionEndTime,
		&l.CurrentHighBidCents, &bidder, &l.CurrentHighProxyCents,
		&l.BidCount, &l.ExtensionCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Status = domain.ListingStatus(status)
	l.CurrentHighBidderID = bidder.String
	return l, nil
}

func (p *Postgres) CreateListing(ctx context.Context, l *domain.Listing) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO listings (id, seller_id, title, description, status,
  opening_price_cents, reserve_price_cents,
  auction_start_time, auction_end_time,
  current_high_bid_cents, current_high_bidder_id, current_high_proxy_cents,
  bid_count, extension_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NULL, 0, 0, 0, $10, $10)`,
		l.ID, l.SellerID, l.Title, l.Description, string(l.Status),
		l.OpeningPriceCents, l.ReservePriceCents,
		l.AuctionStartTime, l.AuctionEndTime, l.CreatedAt,
	)
	if err != nil {
		return wrapStoreErr("create_listing", err)
	}
	return nil
}

func (p *Postgres) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	if err != nil {
		return domain.Listing{}, wrapStoreErr("get_listing", err)
	}
	return l, nil
}

func (p *Postgres) MutateListing(ctx context.Context, id string, fn MutateFunc) (domain.Listing, *domain.Bid, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.Listing{}, nil, wrapStoreErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE NOWAIT`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, nil, domain.ErrListingNotFound
	}
	if err != nil {
		return domain.Listing{}, nil, wrapStoreErr("lock_listing", err)
	}

	bid, err := fn(&l)
	if err != nil {
		return domain.Listing{}, nil, err
	}

	l.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
UPDATE listings SET
  status = $2,
  auction_end_time = $3,
  current_high_bid_cents = $4,
  current_high_bidder_id = NULLIF($5, ''),
  current_high_proxy_cents = $6,
  bid_count = $7,
  extension_count = $8,
  updated_at = $9
WHERE id = $1`,
		l.ID, string(l.Status), l.AuctionEndTime,
		l.CurrentHighBidCents, l.CurrentHighBidderID, l.CurrentHighProxyCents,
		l.BidCount, l.ExtensionCount, l.UpdatedAt,
	); err != nil {
		return domain.Listing{}, nil, wrapStoreErr("update_listing", err)
	}

	if bid != nil {
		// Stamped under the row lock: with bids on one listing strictly
		// serialized, bid_count gives a per-listing monotonic sequence.
		bid.Sequence = l.BidCount
		bid.PlacedAt = l.UpdatedAt
		if _, err := tx.ExecContext(ctx, `
INSERT INTO bids (id, listing_id, bidder_id, proxy_max_cents, placed_at, seq,
  source, client_ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			bid.ID, bid.ListingID, bid.BidderID, bid.ProxyMaxCents,
			bid.PlacedAt, bid.Sequence, bid.Source, bid.ClientIP, bid.UserAgent,
		); err != nil {
			return domain.Listing{}, nil, wrapStoreErr("append_bid", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Listing{}, nil, wrapStoreErr("commit", err)
	}
	return l, bid, nil
}

func (p *Postgres) TransitionStatus(ctx context.Context, id string, from, to domain.ListingStatus, now time.Time) (domain.Listing, bool, error) {
	row := p.db.QueryRowContext(ctx, `
UPDATE listings SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING `+listingColumns, id, string(from), string(to), now)
	l, err := scanListing(row)
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, false, wrapStoreErr("transition_status", err)
	}

	// CAS missed: report current state so the caller can no-op.
	cur, err := p.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, false, err
	}
	return cur, false, nil
}

func (p *Postgres) DueStarts(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return p.dueIDs(ctx, `
SELECT id FROM listings
WHERE status = $1 AND auction_start_time <= $2
ORDER BY auction_start_time ASC
LIMIT $3`, domain.StatusDraft, now, limit)
}

func (p *Postgres) DueEnds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return p.dueIDs(ctx, `
SELECT id FROM listings
WHERE status = $1 AND auction_end_time <= $2
ORDER BY auction_end_time ASC
LIMIT $3`, domain.StatusActive, now, limit)
}

func (p *Postgres) dueIDs(ctx context.Context, query string, status domain.ListingStatus, now time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, string(status), now, limit)
	if err != nil {
		return nil, wrapStoreErr("due_scan", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStoreErr("due_scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("due_scan", err)
	}
	return ids, nil
}

func (p *Postgres) ListBids(ctx context.Context, listingID string, limit int) ([]domain.Bid, error) {
	if limit < 0 {
		limit = 0
	}
	// NULLIF turns a zero limit into LIMIT NULL, i.e. no limit.
	rows, err := p.db.QueryContext(ctx, `
SELECT id, listing_id, bidder_id, proxy_max_cents, placed_at, seq, source, client_ip, user_agent
FROM bids
WHERE listing_id = $1
ORDER BY seq DESC
LIMIT NULLIF($2, 0)`, listingID, limit)
	if err != nil {
		return nil, wrapStoreErr("list_bids", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.ProxyMaxCents,
			&b.PlacedAt, &b.Sequence, &b.Source, &b.ClientIP, &b.UserAgent); err != nil {
			return nil, wrapStoreErr("list_bids", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list_bids", err)
	}
	return bids, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "ping", Cause: err}
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
