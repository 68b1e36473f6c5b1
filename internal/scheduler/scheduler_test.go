package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sss97133/nuke-sub012/internal/domain"
	"github.com/sss97133/nuke-sub012/internal/events"
	"github.com/sss97133/nuke-sub012/internal/store"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time                              { return c.now }
func (c *manualClock) Sleep(context.Context, time.Duration) error { return nil }

// channelSettlement delivers each handoff to a channel so tests can
// observe the asynchronous settlement goroutine.
type channelSettlement struct {
	ch chan domain.Listing
}

func newChannelSettlement() *channelSettlement {
	return &channelSettlement{ch: make(chan domain.Listing, 16)}
}

func (s *channelSettlement) Settle(_ context.Context, l domain.Listing) error {
	s.ch <- l
	return nil
}

func (s *channelSettlement) waitOne(t *testing.T) domain.Listing {
	t.Helper()
	select {
	case l := <-s.ch:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settlement handoff")
		return domain.Listing{}
	}
}

func (s *channelSettlement) assertNoMore(t *testing.T) {
	t.Helper()
	select {
	case l := <-s.ch:
		t.Fatalf("unexpected extra settlement for listing %s", l.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

type schedFixture struct {
	sched      *Scheduler
	store      *store.Memory
	emitter    *events.Capture
	settlement *channelSettlement
	clock      *manualClock
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory(clock)
	emitter := &events.Capture{}
	settlement := newChannelSettlement()
	s := New(Config{Store: mem, Emitter: emitter, Settlement: settlement, Clock: clock})
	return &schedFixture{sched: s, store: mem, emitter: emitter, settlement: settlement, clock: clock}
}

func (f *schedFixture) seed(t *testing.T, id string, status domain.ListingStatus, start, end time.Time) {
	t.Helper()
	require.NoError(t, f.store.CreateListing(context.Background(), &domain.Listing{
		ID:                id,
		SellerID:          "seller-1",
		Title:             "barn find",
		Status:            status,
		OpeningPriceCents: 50000,
		AuctionStartTime:  start,
		AuctionEndTime:    end,
	}))
}

func TestTickStartsDueListings(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "due", domain.StatusDraft, now.Add(-time.Second), now.Add(time.Hour))
	f.seed(t, "future", domain.StatusDraft, now.Add(time.Hour), now.Add(2*time.Hour))

	report, err := f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Started)
	assert.Equal(t, []string{"due"}, report.StartIDs)
	assert.Zero(t, report.StartFailed)

	l, err := f.store.GetListing(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, l.Status)

	started := f.emitter.OfType(domain.EventAuctionStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "due", started[0].ListingID)
}

func TestTickEndsDueListingAndHandsOffWinner(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "closing", domain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Second))

	_, _, err := f.store.MutateListing(ctx, "closing", func(l *domain.Listing) (*domain.Bid, error) {
		l.CurrentHighBidCents = 75000
		l.CurrentHighBidderID = "winner-1"
		l.BidCount = 4
		return nil, nil
	})
	require.NoError(t, err)

	report, err := f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ended)
	assert.Equal(t, []string{"closing"}, report.EndIDs)

	l, err := f.store.GetListing(ctx, "closing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, l.Status)

	ended := f.emitter.OfType(domain.EventAuctionEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "winner-1", ended[0].WinnerID)
	assert.Equal(t, int64(75000), ended[0].FinalBidCents)
	assert.Equal(t, int64(4), ended[0].BidCount)

	settled := f.settlement.waitOne(t)
	assert.Equal(t, "closing", settled.ID)
	f.settlement.assertNoMore(t)
}

func TestTickEndsListingWithNoBidsWithoutSettlement(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "unsold", domain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Second))

	report, err := f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ended)

	ended := f.emitter.OfType(domain.EventAuctionEnded)
	require.Len(t, ended, 1)
	assert.Empty(t, ended[0].WinnerID)

	f.settlement.assertNoMore(t)
}

func TestConcurrentTicksFinalizeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "closing", domain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Second))

	const ticks = 8
	var totalEnded int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(ticks)
	for i := 0; i < ticks; i++ {
		go func() {
			defer wg.Done()
			report, err := f.sched.Tick(ctx, TickRequest{})
			if err != nil {
				return
			}
			mu.Lock()
			totalEnded += int64(report.Ended)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), totalEnded, "only the CAS winner reports the transition")
	assert.Len(t, f.emitter.OfType(domain.EventAuctionEnded), 1)
}

func TestTickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "due", domain.StatusDraft, now.Add(-time.Second), now.Add(time.Hour))

	first, err := f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Started)

	second, err := f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Zero(t, second.Started)
	assert.Zero(t, second.StartFailed)
	assert.Len(t, f.emitter.OfType(domain.EventAuctionStarted), 1)
}

func TestDryRunCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "due-start", domain.StatusDraft, now.Add(-time.Second), now.Add(time.Hour))
	f.seed(t, "due-end", domain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Second))

	report, err := f.sched.Tick(ctx, TickRequest{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, []string{"due-start"}, report.StartIDs)
	assert.Equal(t, []string{"due-end"}, report.EndIDs)

	l, err := f.store.GetListing(ctx, "due-start")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, l.Status)

	l, err = f.store.GetListing(ctx, "due-end")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, l.Status)

	assert.Empty(t, f.emitter.Events())
}

func TestStartBatchSizeLimitsPass(t *testing.T) {
	ctx := context.Background()
	f := newSchedFixture(t)
	now := f.clock.now
	f.seed(t, "a", domain.StatusDraft, now.Add(-3*time.Second), now.Add(time.Hour))
	f.seed(t, "b", domain.StatusDraft, now.Add(-2*time.Second), now.Add(time.Hour))
	f.seed(t, "c", domain.StatusDraft, now.Add(-time.Second), now.Add(time.Hour))

	report, err := f.sched.Tick(ctx, TickRequest{StartBatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Started)

	report, err = f.sched.Tick(ctx, TickRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Started)
}

func TestClampBatch(t *testing.T) {
	assert.Equal(t, MaxBatchSize, clampBatch(0))
	assert.Equal(t, MaxBatchSize, clampBatch(-5))
	assert.Equal(t, MaxBatchSize, clampBatch(MaxBatchSize+1))
	assert.Equal(t, 17, clampBatch(17))
}

// brokenTransitionStore fails transitions for one listing id.
type brokenTransitionStore struct {
	*store.Memory
	brokenID string
}

func (s *brokenTransitionStore) TransitionStatus(ctx context.Context, id string, from, to domain.ListingStatus, now time.Time) (domain.Listing, bool, error) {
	if id == s.brokenID {
		return domain.Listing{}, false, &domain.PersistenceError{Op: "transition", Cause: errors.New("row unavailable")}
	}
	return s.Memory.TransitionStatus(ctx, id, from, to, now)
}

func TestTickIsolatesPerListingFailures(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory(clock)
	emitter := &events.Capture{}
	s := New(Config{
		Store:   &brokenTransitionStore{Memory: mem, brokenID: "bad"},
		Emitter: emitter,
		Clock:   clock,
	})
	now := clock.now

	for _, id := range []string{"bad", "good"} {
		require.NoError(t, mem.CreateListing(ctx, &domain.Listing{
			ID:               id,
			SellerID:         "seller-1",
			Status:           domain.StatusActive,
			AuctionStartTime: now.Add(-2 * time.Hour),
			AuctionEndTime:   now.Add(-time.Second),
		}))
	}

	report, err := s.Tick(ctx, TickRequest{})
	require.NoError(t, err, "per-listing failures never fail the tick")
	assert.Equal(t, 1, report.Ended)
	assert.Equal(t, []string{"good"}, report.EndIDs)
	assert.Equal(t, 1, report.EndFailed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "bad")

	l, err := mem.GetListing(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, l.Status)
}
