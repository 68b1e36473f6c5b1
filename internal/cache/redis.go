// Package cache keeps a Redis copy of each listing's public snapshot so
// the read path never touches the listing row. The store remains the
// source of truth; the cache is refreshed best-effort after commits.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Snapshot is the public view of a listing: derived fields only, never
// the winner's proxy maximum.
type Snapshot struct {
	ListingID         string               `json:"listing_id"`
	Status            domain.ListingStatus `json:"status"`
	DisplayedBidCents int64                `json:"displayed_bid_cents"`
	HighBidderID      string               `json:"high_bidder_id,omitempty"`
	BidCount          int64                `json:"bid_count"`
	ExtensionCount    int64                `json:"extension_count"`
	AuctionStartTime  time.Time            `json:"auction_start_time"`
	AuctionEndTime    time.Time            `json:"auction_end_time"`
}

// SnapshotOf projects a listing onto its public snapshot.
func SnapshotOf(l domain.Listing) Snapshot {
	return Snapshot{
		ListingID:         l.ID,
		Status:            l.Status,
		DisplayedBidCents: l.CurrentHighBidCents,
		HighBidderID:      l.CurrentHighBidderID,
		BidCount:          l.BidCount,
		ExtensionCount:    l.ExtensionCount,
		AuctionStartTime:  l.AuctionStartTime,
		AuctionEndTime:    l.AuctionEndTime,
	}
}

// ErrMiss is returned when no snapshot is cached for a listing.
var ErrMiss = errors.New("cache miss")

// Client wraps Redis with listing snapshot operations.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{client: rdb, ttl: ttl}, nil
}

func snapshotKey(listingID string) string {
	return fmt.Sprintf("listing:%s:snapshot", listingID)
}

// SetSnapshot stores the listing's public snapshot.
func (c *Client) SetSnapshot(ctx context.Context, l domain.Listing) error {
	data, err := json.Marshal(SnapshotOf(l))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(l.ID), data, c.ttl).Err()
}

// GetSnapshot fetches the cached snapshot, or ErrMiss.
func (c *Client) GetSnapshot(ctx context.Context, listingID string) (Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(listingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrMiss
	}
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error { return c.client.Close() }
