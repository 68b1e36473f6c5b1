package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

func newListing(id string, status domain.ListingStatus, start, end time.Time) *domain.Listing {
	now := time.Now().UTC()
	return &domain.Listing{
		ID:               id,
		SellerID:         "seller-1",
		Title:            "test listing",
		Status:           status,
		AuctionStartTime: start,
		AuctionEndTime:   end,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateAndGetListing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()

	l := newListing("lst-1", domain.StatusDraft, now, now.Add(time.Hour))
	require.NoError(t, m.CreateListing(ctx, l))

	got, err := m.GetListing(ctx, "lst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)

	_, err = m.GetListing(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)

	err = m.CreateListing(ctx, l)
	assert.Error(t, err, "duplicate id must be rejected")
}

func TestTransitionStatusCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()
	require.NoError(t, m.CreateListing(ctx, newListing("lst-1", domain.StatusDraft, now, now.Add(time.Hour))))

	l, swapped, err := m.TransitionStatus(ctx, "lst-1", domain.StatusDraft, domain.StatusActive, now)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, domain.StatusActive, l.Status)

	// Second CAS with the same expected prior status misses.
	l, swapped, err = m.TransitionStatus(ctx, "lst-1", domain.StatusDraft, domain.StatusActive, now)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, domain.StatusActive, l.Status)
}

func TestTransitionStatusConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()
	require.NoError(t, m.CreateListing(ctx, newListing("lst-1", domain.StatusActive, now.Add(-time.Hour), now)))

	const racers = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, swapped, err := m.TransitionStatus(ctx, "lst-1", domain.StatusActive, domain.StatusEnded, now)
			if err != nil {
				return
			}
			if swapped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins, "exactly one racer may win the CAS")
}

func TestMutateListingAppendsBidWithMonotonicSequence(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()
	require.NoError(t, m.CreateListing(ctx, newListing("lst-1", domain.StatusActive, now.Add(-time.Hour), now.Add(time.Hour))))

	for i := 0; i < 5; i++ {
		_, bid, err := m.MutateListing(ctx, "lst-1", func(l *domain.Listing) (*domain.Bid, error) {
			l.BidCount++
			return &domain.Bid{
				ID:            uuid.NewString(),
				ListingID:     l.ID,
				BidderID:      "b",
				ProxyMaxCents: 1000,
			}, nil
		})
		require.NoError(t, err)
		require.NotNil(t, bid)
		assert.Equal(t, int64(i+1), bid.Sequence)
		assert.False(t, bid.PlacedAt.IsZero())
	}

	bids, err := m.ListBids(ctx, "lst-1", 0)
	require.NoError(t, err)
	require.Len(t, bids, 5)
	// Newest first.
	assert.Equal(t, int64(5), bids[0].Sequence)
	assert.Equal(t, int64(1), bids[4].Sequence)
	for i := 0; i < len(bids)-1; i++ {
		assert.False(t, bids[i].PlacedAt.Before(bids[i+1].PlacedAt), "placed_at must be monotonic per listing")
	}
}

func TestMutateListingErrorDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()
	require.NoError(t, m.CreateListing(ctx, newListing("lst-1", domain.StatusActive, now.Add(-time.Hour), now.Add(time.Hour))))

	boom := errors.New("boom")
	_, _, err := m.MutateListing(ctx, "lst-1", func(l *domain.Listing) (*domain.Bid, error) {
		l.BidCount = 99
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetListing(ctx, "lst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.BidCount, "failed mutation must not leak state")

	bids, err := m.ListBids(ctx, "lst-1", 0)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestDueScansFilterOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	now := time.Now().UTC()

	require.NoError(t, m.CreateListing(ctx, newListing("due-2", domain.StatusDraft, now.Add(-time.Minute), now.Add(time.Hour))))
	require.NoError(t, m.CreateListing(ctx, newListing("due-1", domain.StatusDraft, now.Add(-time.Hour), now.Add(time.Hour))))
	require.NoError(t, m.CreateListing(ctx, newListing("future", domain.StatusDraft, now.Add(time.Hour), now.Add(2*time.Hour))))
	require.NoError(t, m.CreateListing(ctx, newListing("ending", domain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Minute))))

	starts, err := m.DueStarts(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"due-1", "due-2"}, starts, "ordered by due time")

	starts, err = m.DueStarts(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"due-1"}, starts)

	ends, err := m.DueEnds(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ending"}, ends)
}
