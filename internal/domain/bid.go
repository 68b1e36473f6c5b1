package domain

import "time"

// Bid is one row of the append-only bid ledger. It stores the bidder's
// raw proxy maximum, not the displayed value, and is immutable once
// written. Outbid bids are kept for the audit trail.
type Bid struct {
	ID            string `json:"id"`
	ListingID     string `json:"listing_id"`
	BidderID      string `json:"bidder_id"`
	ProxyMaxCents int64  `json:"proxy_max_cents"`

	// PlacedAt and Sequence are server-assigned under the listing
	// lock; Sequence is strictly increasing per listing.
	PlacedAt time.Time `json:"placed_at"`
	Sequence int64     `json:"sequence"`

	Source    string `json:"source,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
