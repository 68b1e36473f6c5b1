package domain

import "time"

// ListingStatus is the lifecycle state of an auction listing.
type ListingStatus string

const (
	StatusDraft     ListingStatus = "draft"
	StatusActive    ListingStatus = "active"
	StatusEnded     ListingStatus = "ended"
	StatusCancelled ListingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusEnded, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the listing can never change status again.
func (s ListingStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// CanTransitionTo reports whether the forward-only state machine allows
// moving from s to next: draft→active→ended, plus draft|active→cancelled.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusEnded || next == StatusCancelled
	}
	return false
}

// Listing is the durable record of one auction. CurrentHighBidCents and
// CurrentHighBidderID are derived fields owned by the bid resolver;
// AuctionEndTime is mutable only by the anti-snipe extension policy
// while the listing is active.
type Listing struct {
	ID          string `json:"id"`
	SellerID    string `json:"seller_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Status ListingStatus `json:"status"`

	OpeningPriceCents int64 `json:"opening_price_cents"`
	// ReservePriceCents is an optional floor; 0 means no reserve.
	ReservePriceCents int64 `json:"reserve_price_cents,omitempty"`

	AuctionStartTime time.Time `json:"auction_start_time"`
	AuctionEndTime   time.Time `json:"auction_end_time"`

	CurrentHighBidCents int64  `json:"current_high_bid_cents"`
	CurrentHighBidderID string `json:"current_high_bidder_id,omitempty"`
	// CurrentHighProxyCents is the winning bidder's private proxy
	// maximum. Never exposed through the API.
	CurrentHighProxyCents int64 `json:"-"`

	BidCount       int64 `json:"bid_count"`
	ExtensionCount int64 `json:"extension_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpeningFloorCents is the minimum acceptable first bid: the greater of
// the opening price and the reserve.
func (l *Listing) OpeningFloorCents() int64 {
	if l.ReservePriceCents > l.OpeningPriceCents {
		return l.ReservePriceCents
	}
	return l.OpeningPriceCents
}

// InBiddingWindow reports whether now falls inside the listing's
// scheduled auction window.
func (l *Listing) InBiddingWindow(now time.Time) bool {
	return !now.Before(l.AuctionStartTime) && !now.After(l.AuctionEndTime)
}
