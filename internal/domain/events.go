package domain

import "time"

// EventType identifies a broadcast event kind.
type EventType string

const (
	EventBidPlaced       EventType = "bid_placed"
	EventAuctionExtended EventType = "auction_extended"
	EventAuctionStarted  EventType = "auction_started"
	EventAuctionEnded    EventType = "auction_ended"
)

// Event is the payload published to the broadcast boundary after a
// committed state change. Delivery is best-effort and decoupled from
// the triggering transaction.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	ListingID  string    `json:"listing_id"`
	OccurredAt time.Time `json:"occurred_at"`

	DisplayedBidCents int64  `json:"displayed_bid_cents,omitempty"`
	HighBidderID      string `json:"high_bidder_id,omitempty"`
	BidCount          int64  `json:"bid_count,omitempty"`

	Extended   bool      `json:"extended,omitempty"`
	NewEndTime time.Time `json:"new_end_time,omitempty"`

	// Final results, set on auction_ended.
	FinalBidCents int64  `json:"final_bid_cents,omitempty"`
	WinnerID      string `json:"winner_id,omitempty"`
}
