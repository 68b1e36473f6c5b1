package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sss97133/nuke-sub012/internal/backoff"
	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Memory implements Store with a mutex per listing, mirroring the
// Postgres row-lock semantics. Used by tests and local development.
type Memory struct {
	clock backoff.Clock

	mu       sync.RWMutex
	listings map[string]*memListing
}

type memListing struct {
	mu      sync.Mutex
	listing domain.Listing
	bids    []domain.Bid
}

// NewMemory returns an empty in-memory store.
func NewMemory(clock backoff.Clock) *Memory {
	if clock == nil {
		clock = backoff.SystemClock{}
	}
	return &Memory{
		clock:    clock,
		listings: make(map[string]*memListing),
	}
}

func (m *Memory) get(id string) (*memListing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.listings[id]
	return e, ok
}

func (m *Memory) CreateListing(_ context.Context, l *domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.listings[l.ID]; exists {
		return &domain.ValidationError{Message: "listing id already exists"}
	}
	cp := *l
	m.listings[l.ID] = &memListing{listing: cp}
	return nil
}

func (m *Memory) GetListing(_ context.Context, id string) (domain.Listing, error) {
	e, ok := m.get(id)
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listing, nil
}

func (m *Memory) MutateListing(_ context.Context, id string, fn MutateFunc) (domain.Listing, *domain.Bid, error) {
	e, ok := m.get(id)
	if !ok {
		return domain.Listing{}, nil, domain.ErrListingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.listing
	bid, err := fn(&work)
	if err != nil {
		return domain.Listing{}, nil, err
	}

	now := m.clock.Now()
	// placed_at must be monotonic per listing even if the clock is not.
	if n := len(e.bids); n > 0 && now.Before(e.bids[n-1].PlacedAt) {
		now = e.bids[n-1].PlacedAt
	}
	work.UpdatedAt = now
	if bid != nil {
		bid.Sequence = work.BidCount
		bid.PlacedAt = now
		e.bids = append(e.bids, *bid)
	}
	e.listing = work
	return work, bid, nil
}

func (m *Memory) TransitionStatus(_ context.Context, id string, from, to domain.ListingStatus, now time.Time) (domain.Listing, bool, error) {
	e, ok := m.get(id)
	if !ok {
		return domain.Listing{}, false, domain.ErrListingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listing.Status != from {
		return e.listing, false, nil
	}
	e.listing.Status = to
	e.listing.UpdatedAt = now
	return e.listing, true, nil
}

func (m *Memory) DueStarts(_ context.Context, now time.Time, limit int) ([]string, error) {
	return m.due(now, limit, func(l domain.Listing) (time.Time, bool) {
		return l.AuctionStartTime, l.Status == domain.StatusDraft && !l.AuctionStartTime.After(now)
	})
}

func (m *Memory) DueEnds(_ context.Context, now time.Time, limit int) ([]string, error) {
	return m.due(now, limit, func(l domain.Listing) (time.Time, bool) {
		return l.AuctionEndTime, l.Status == domain.StatusActive && !l.AuctionEndTime.After(now)
	})
}

func (m *Memory) due(_ time.Time, limit int, pick func(domain.Listing) (time.Time, bool)) ([]string, error) {
	type dueItem struct {
		id string
		at time.Time
	}

	m.mu.RLock()
	entries := make([]*memListing, 0, len(m.listings))
	for _, e := range m.listings {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var items []dueItem
	for _, e := range entries {
		e.mu.Lock()
		l := e.listing
		e.mu.Unlock()
		if at, ok := pick(l); ok {
			items = append(items, dueItem{id: l.ID, at: at})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })

	ids := make([]string, 0, len(items))
	for _, it := range items {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, it.id)
	}
	return ids, nil
}

func (m *Memory) ListBids(_ context.Context, listingID string, limit int) ([]domain.Bid, error) {
	e, ok := m.get(listingID)
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Bid, 0, len(e.bids))
	for i := len(e.bids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e.bids[i])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
