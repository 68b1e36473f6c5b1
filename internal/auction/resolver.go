package auction

import (
	"fmt"
	"time"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Outcome is the resolver's verdict on an accepted bid. The caller
// applies it to the listing inside the same transaction.
type Outcome struct {
	DisplayedBidCents int64
	HighBidderID      string
	HighProxyCents    int64
	// BecameHighBidder is false when the bid was accepted into the
	// ledger but the prior winner's proxy max held.
	BecameHighBidder bool
}

// ResolveBid runs classic proxy (English auction) resolution against a
// listing snapshot. It must be called under the listing's exclusive
// lock so the current high proxy and displayed bid cannot go stale.
//
// Accepted bids always produce an Outcome; rejected bids return a
// StateConflictError (auction_not_active, bid_too_low) or a
// ValidationError and must not reach the ledger.
//
// Tie-break: an equal proxy max never displaces the earlier bid, since
// winning requires strictly exceeding the current winner's proxy.
func ResolveBid(l *domain.Listing, bidderID string, proxyMaxCents int64, sched IncrementSchedule, now time.Time) (Outcome, error) {
	if bidderID == "" {
		return Outcome{}, &domain.ValidationError{Message: "bidder_id required"}
	}
	if proxyMaxCents <= 0 {
		return Outcome{}, &domain.ValidationError{Message: "proxy_max_bid_cents must be > 0"}
	}
	if l.Status != domain.StatusActive {
		return Outcome{}, &domain.StateConflictError{
			Code:    domain.ReasonAuctionNotActive,
			Message: fmt.Sprintf("listing %s is %s, not active", l.ID, l.Status),
		}
	}
	if !l.InBiddingWindow(now) {
		return Outcome{}, &domain.StateConflictError{
			Code:    domain.ReasonAuctionNotActive,
			Message: fmt.Sprintf("listing %s is outside its bidding window", l.ID),
		}
	}

	// First bid: the bidder wins at the opening floor, which the proxy
	// max must at least meet. The floor, not the proxy, is displayed.
	if l.CurrentHighBidderID == "" {
		floor := l.OpeningFloorCents()
		if proxyMaxCents < floor {
			return Outcome{}, tooLow(floor)
		}
		return Outcome{
			DisplayedBidCents: floor,
			HighBidderID:      bidderID,
			HighProxyCents:    proxyMaxCents,
			BecameHighBidder:  true,
		}, nil
	}

	displayed := l.CurrentHighBidCents
	highProxy := l.CurrentHighProxyCents

	minAcceptable := displayed + sched.Step(displayed)
	if proxyMaxCents < minAcceptable {
		return Outcome{}, tooLow(minAcceptable)
	}

	if proxyMaxCents > highProxy {
		// New winner: displayed rises to one increment over the old
		// proxy max, capped at the new bidder's own max.
		return Outcome{
			DisplayedBidCents: min64(proxyMaxCents, highProxy+sched.Step(highProxy)),
			HighBidderID:      bidderID,
			HighProxyCents:    proxyMaxCents,
			BecameHighBidder:  true,
		}, nil
	}

	// Outbid: the incumbent's proxy covers this bid. The displayed bid
	// rises to one increment over the challenger, capped at the
	// incumbent's max.
	return Outcome{
		DisplayedBidCents: min64(proxyMaxCents+sched.Step(proxyMaxCents), highProxy),
		HighBidderID:      l.CurrentHighBidderID,
		HighProxyCents:    highProxy,
		BecameHighBidder:  false,
	}, nil
}

func tooLow(minCents int64) error {
	return &domain.StateConflictError{
		Code:    domain.ReasonBidTooLow,
		Message: fmt.Sprintf("bid below minimum of %d cents", minCents),
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
