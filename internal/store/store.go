// Package store persists listings and the append-only bid ledger. Every
// state-changing operation is scoped to exactly one listing and runs
// under that listing's exclusive lock, so concurrent bids and lifecycle
// transitions on the same listing are strictly serialized while
// different listings never contend.
package store

import (
	"context"
	"time"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// MutateFunc runs with the listing's row lock held. It may mutate l in
// place and return a bid to append to the ledger (nil for none). Any
// error aborts the transaction without persisting anything.
type MutateFunc func(l *domain.Listing) (*domain.Bid, error)

// Store is the durable listing store plus bid ledger.
type Store interface {
	CreateListing(ctx context.Context, l *domain.Listing) error
	GetListing(ctx context.Context, id string) (domain.Listing, error)

	// MutateListing loads the listing under an exclusive lock, applies
	// fn, and atomically persists the updated listing together with the
	// returned ledger row. The bid's PlacedAt and Sequence are
	// server-assigned under the lock. Returns the committed listing and
	// the stamped bid.
	MutateListing(ctx context.Context, id string, fn MutateFunc) (domain.Listing, *domain.Bid, error)

	// TransitionStatus performs an atomic compare-and-set of the
	// listing status. swapped is false when the current status did not
	// match from; the returned listing reflects whatever is now
	// committed. A failed CAS is not an error.
	TransitionStatus(ctx context.Context, id string, from, to domain.ListingStatus, now time.Time) (l domain.Listing, swapped bool, err error)

	// DueStarts returns ids of draft listings whose start time has
	// passed, ordered by due time, up to limit.
	DueStarts(ctx context.Context, now time.Time, limit int) ([]string, error)

	// DueEnds returns ids of active listings whose end time has passed,
	// ordered by due time, up to limit.
	DueEnds(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ListBids returns the ledger for a listing, newest first. A
	// non-positive limit returns every row.
	ListBids(ctx context.Context, listingID string, limit int) ([]domain.Bid, error)

	Ping(ctx context.Context) error
	Close() error
}
