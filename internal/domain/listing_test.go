package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransitionTo(StatusActive))
	assert.True(t, StatusDraft.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusActive.CanTransitionTo(StatusEnded))
	assert.True(t, StatusActive.CanTransitionTo(StatusCancelled))

	assert.False(t, StatusDraft.CanTransitionTo(StatusEnded), "no skipping active")
	assert.False(t, StatusEnded.CanTransitionTo(StatusActive), "terminal states never leave")
	assert.False(t, StatusCancelled.CanTransitionTo(StatusActive))

	assert.True(t, StatusEnded.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusActive.Terminal())

	assert.False(t, ListingStatus("archived").Valid())
}

func TestOpeningFloorCents(t *testing.T) {
	l := Listing{OpeningPriceCents: 50000}
	assert.Equal(t, int64(50000), l.OpeningFloorCents())

	l.ReservePriceCents = 80000
	assert.Equal(t, int64(80000), l.OpeningFloorCents())

	l.ReservePriceCents = 10000
	assert.Equal(t, int64(50000), l.OpeningFloorCents())
}

func TestInBiddingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Listing{AuctionStartTime: now.Add(-time.Hour), AuctionEndTime: now.Add(time.Hour)}

	assert.True(t, l.InBiddingWindow(now))
	assert.True(t, l.InBiddingWindow(l.AuctionStartTime))
	assert.True(t, l.InBiddingWindow(l.AuctionEndTime))
	assert.False(t, l.InBiddingWindow(l.AuctionStartTime.Add(-time.Second)))
	assert.False(t, l.InBiddingWindow(l.AuctionEndTime.Add(time.Second)))
}
