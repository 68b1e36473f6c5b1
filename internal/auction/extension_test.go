package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

func TestLateBidExtendsWindow(t *testing.T) {
	now := time.Now().UTC()
	p := ExtensionPolicy{Window: 120 * time.Second}
	l := &domain.Listing{AuctionEndTime: now.Add(10 * time.Second)}

	res := p.Evaluate(l, now)
	assert.True(t, res.Extended)
	assert.Equal(t, now.Add(120*time.Second), res.NewEndTime)
}

func TestEarlyBidDoesNotExtend(t *testing.T) {
	now := time.Now().UTC()
	p := ExtensionPolicy{Window: 120 * time.Second}
	end := now.Add(300 * time.Second)
	l := &domain.Listing{AuctionEndTime: end}

	res := p.Evaluate(l, now)
	assert.False(t, res.Extended)
	assert.Equal(t, end, res.NewEndTime)
}

func TestBidExactlyAtWindowBoundaryExtends(t *testing.T) {
	now := time.Now().UTC()
	p := ExtensionPolicy{Window: 120 * time.Second}
	l := &domain.Listing{AuctionEndTime: now.Add(120 * time.Second)}

	res := p.Evaluate(l, now)
	assert.True(t, res.Extended)
}

func TestExtensionCapStopsExtending(t *testing.T) {
	now := time.Now().UTC()
	p := ExtensionPolicy{Window: 120 * time.Second, MaxExtensions: 3}
	end := now.Add(10 * time.Second)

	l := &domain.Listing{AuctionEndTime: end, ExtensionCount: 2}
	assert.True(t, p.Evaluate(l, now).Extended)

	l.ExtensionCount = 3
	res := p.Evaluate(l, now)
	assert.False(t, res.Extended, "bids past the cap no longer move the window")
	assert.Equal(t, end, res.NewEndTime)
}

func TestZeroWindowDisablesExtensions(t *testing.T) {
	now := time.Now().UTC()
	p := ExtensionPolicy{}
	l := &domain.Listing{AuctionEndTime: now.Add(time.Second)}

	assert.False(t, p.Evaluate(l, now).Extended)
}
