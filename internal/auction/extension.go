package auction

import (
	"time"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// ExtensionPolicy decides whether a late bid pushes out the auction
// close to defeat sniping. A zero Window disables extensions; a zero
// MaxExtensions leaves the count uncapped. Past the cap, bids are
// still accepted but the window no longer moves.
type ExtensionPolicy struct {
	Window        time.Duration
	MaxExtensions int64
}

// ExtensionResult reports whether an extension fired and the end time
// in force afterwards.
type ExtensionResult struct {
	Extended   bool
	NewEndTime time.Time
}

// Evaluate is called inside the same transaction as a successful bid.
func (p ExtensionPolicy) Evaluate(l *domain.Listing, now time.Time) ExtensionResult {
	if p.Window <= 0 {
		return ExtensionResult{NewEndTime: l.AuctionEndTime}
	}
	if p.MaxExtensions > 0 && l.ExtensionCount >= p.MaxExtensions {
		return ExtensionResult{NewEndTime: l.AuctionEndTime}
	}
	if l.AuctionEndTime.Sub(now) > p.Window {
		return ExtensionResult{NewEndTime: l.AuctionEndTime}
	}
	return ExtensionResult{Extended: true, NewEndTime: now.Add(p.Window)}
}
