// Package engine orchestrates bid placement: it serializes each bid
// through the listing's transaction, runs proxy resolution and the
// anti-snipe policy inside it, and fires broadcast events and cache
// refreshes only after commit.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sss97133/nuke-sub012/internal/auction"
	"github.com/sss97133/nuke-sub012/internal/backoff"
	"github.com/sss97133/nuke-sub012/internal/domain"
	"github.com/sss97133/nuke-sub012/internal/events"
	"github.com/sss97133/nuke-sub012/internal/obs"
	"github.com/sss97133/nuke-sub012/internal/store"
)

// SnapshotCache refreshes the read-path copy of a listing. Refreshes
// are best effort.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, l domain.Listing) error
}

// Engine executes bid placement and explicit cancellation.
type Engine struct {
	store     store.Store
	emitter   events.Emitter
	cache     SnapshotCache // may be nil
	metrics   *obs.Metrics  // may be nil
	increment auction.IncrementSchedule
	extension auction.ExtensionPolicy
	retry     backoff.Policy
	clock     backoff.Clock
}

// Config wires an Engine. Store and Emitter are required; nil Clock
// falls back to the system clock.
type Config struct {
	Store     store.Store
	Emitter   events.Emitter
	Cache     SnapshotCache
	Metrics   *obs.Metrics
	Increment auction.IncrementSchedule
	Extension auction.ExtensionPolicy
	Retry     backoff.Policy
	Clock     backoff.Clock
}

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = backoff.SystemClock{}
	}
	if cfg.Increment == nil {
		cfg.Increment = auction.DefaultIncrementSchedule()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = backoff.DefaultPolicy()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.Nop{}
	}
	return &Engine{
		store:     cfg.Store,
		emitter:   cfg.Emitter,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		increment: cfg.Increment,
		extension: cfg.Extension,
		retry:     cfg.Retry,
		clock:     cfg.Clock,
	}
}

// PlaceBidRequest is one bid attempt by a verified bidder.
type PlaceBidRequest struct {
	ListingID     string
	BidderID      string
	ProxyMaxCents int64

	// Provenance, stored on the ledger row.
	Source    string
	ClientIP  string
	UserAgent string
}

// PlaceBidResult reflects the committed listing state after the bid.
type PlaceBidResult struct {
	DisplayedBidCents int64     `json:"displayed_bid_cents"`
	HighBidderID      string    `json:"high_bidder_id"`
	BidCount          int64     `json:"bid_count"`
	YouAreHigh        bool      `json:"you_are_high"`
	AuctionExtended   bool      `json:"auction_extended"`
	NewEndTime        time.Time `json:"new_end_time"`
}

// PlaceBid resolves one proxy bid against the listing under its row
// lock. Contention is retried with bounded backoff before a
// ConcurrencyError surfaces. On success exactly one ledger row, one
// listing update, and one bid_placed event (plus auction_extended when
// the window moved) are produced.
func (e *Engine) PlaceBid(ctx context.Context, req PlaceBidRequest) (PlaceBidResult, error) {
	start := e.clock.Now()
	if req.ListingID == "" {
		return PlaceBidResult{}, &domain.ValidationError{Message: "listing_id required"}
	}

	var (
		result   PlaceBidResult
		outcome  auction.Outcome
		extended auction.ExtensionResult
		listing  domain.Listing
		bid      *domain.Bid
		err      error
	)

	for attempt := 0; ; attempt++ {
		listing, bid, err = e.store.MutateListing(ctx, req.ListingID, func(l *domain.Listing) (*domain.Bid, error) {
			now := e.clock.Now()
			outcome, err = auction.ResolveBid(l, req.BidderID, req.ProxyMaxCents, e.increment, now)
			if err != nil {
				return nil, err
			}

			l.CurrentHighBidCents = outcome.DisplayedBidCents
			l.CurrentHighBidderID = outcome.HighBidderID
			l.CurrentHighProxyCents = outcome.HighProxyCents
			l.BidCount++

			extended = e.extension.Evaluate(l, now)
			if extended.Extended {
				l.AuctionEndTime = extended.NewEndTime
				l.ExtensionCount++
			}

			return &domain.Bid{
				ID:            uuid.NewString(),
				ListingID:     l.ID,
				BidderID:      req.BidderID,
				ProxyMaxCents: req.ProxyMaxCents,
				Source:        req.Source,
				ClientIP:      req.ClientIP,
				UserAgent:     req.UserAgent,
			}, nil
		})
		if err == nil {
			break
		}

		var conflict *domain.ConcurrencyError
		if !errors.As(err, &conflict) || attempt+1 >= e.retry.MaxAttempts {
			e.count(errKind(err))
			e.observe("place_bid", start)
			return PlaceBidResult{}, bidError(err)
		}
		e.retryWait(ctx, attempt)
	}

	result = PlaceBidResult{
		DisplayedBidCents: listing.CurrentHighBidCents,
		HighBidderID:      listing.CurrentHighBidderID,
		BidCount:          listing.BidCount,
		YouAreHigh:        outcome.BecameHighBidder,
		AuctionExtended:   extended.Extended,
		NewEndTime:        listing.AuctionEndTime,
	}

	outcomeLabel := "accepted"
	if !outcome.BecameHighBidder {
		outcomeLabel = "outbid"
	}
	e.count(outcomeLabel)
	e.observe("place_bid", start)

	log.Info().
		Str("listing_id", listing.ID).
		Str("bid_id", bid.ID).
		Str("bidder_id", req.BidderID).
		Int64("displayed_cents", result.DisplayedBidCents).
		Bool("high_bidder", result.YouAreHigh).
		Bool("extended", result.AuctionExtended).
		Msg("bid placed")

	e.afterCommit(ctx, listing, result)
	return result, nil
}

// afterCommit fires the broadcast events and cache refresh. Failures
// are logged, never surfaced: the bid is already committed.
func (e *Engine) afterCommit(ctx context.Context, l domain.Listing, res PlaceBidResult) {
	now := e.clock.Now()
	e.emit(ctx, domain.Event{
		EventID:           uuid.NewString(),
		Type:              domain.EventBidPlaced,
		ListingID:         l.ID,
		OccurredAt:        now,
		DisplayedBidCents: res.DisplayedBidCents,
		HighBidderID:      res.HighBidderID,
		BidCount:          res.BidCount,
		Extended:          res.AuctionExtended,
		NewEndTime:        res.NewEndTime,
	})
	if res.AuctionExtended {
		e.emit(ctx, domain.Event{
			EventID:    uuid.NewString(),
			Type:       domain.EventAuctionExtended,
			ListingID:  l.ID,
			OccurredAt: now,
			Extended:   true,
			NewEndTime: res.NewEndTime,
		})
	}
	if e.cache != nil {
		if err := e.cache.SetSnapshot(ctx, l); err != nil {
			log.Warn().Err(err).Str("listing_id", l.ID).Msg("cache refresh failed")
		}
	}
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	if err := e.emitter.Emit(ctx, ev); err != nil {
		if e.metrics != nil {
			e.metrics.EmitFailures.Inc()
		}
		log.Warn().Err(err).Str("type", string(ev.Type)).Str("listing_id", ev.ListingID).Msg("event emit failed")
	}
}

// Cancel performs the explicit cancellation transition. Only draft and
// active listings can be cancelled; the CAS makes repeats a no-op.
func (e *Engine) Cancel(ctx context.Context, listingID string) (domain.Listing, error) {
	now := e.clock.Now()
	for _, from := range []domain.ListingStatus{domain.StatusActive, domain.StatusDraft} {
		l, swapped, err := e.store.TransitionStatus(ctx, listingID, from, domain.StatusCancelled, now)
		if err != nil {
			return domain.Listing{}, err
		}
		if swapped {
			log.Info().Str("listing_id", listingID).Str("from", string(from)).Msg("listing cancelled")
			if e.metrics != nil && from == domain.StatusActive {
				e.metrics.ActiveListings.Dec()
			}
			if e.cache != nil {
				if cerr := e.cache.SetSnapshot(ctx, l); cerr != nil {
					log.Warn().Err(cerr).Str("listing_id", l.ID).Msg("cache refresh failed")
				}
			}
			return l, nil
		}
		if l.Status == domain.StatusCancelled {
			return l, nil // already cancelled, idempotent
		}
	}
	return domain.Listing{}, &domain.StateConflictError{
		Code:    domain.ReasonAuctionNotActive,
		Message: "listing is not cancellable",
	}
}

func (e *Engine) retryWait(ctx context.Context, attempt int) {
	if e.metrics != nil {
		e.metrics.ContentionRetries.Inc()
	}
	_ = e.clock.Sleep(ctx, e.retry.Delay(attempt))
}

func (e *Engine) count(result string) {
	if e.metrics == nil {
		return
	}
	e.metrics.BidsTotal.WithLabelValues(result).Inc()
}

func (e *Engine) observe(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(e.clock.Now().Sub(start).Milliseconds()))
}

func errKind(err error) string {
	switch {
	case isA[*domain.ValidationError](err):
		return "rejected"
	case isA[*domain.StateConflictError](err):
		return "rejected"
	case isA[*domain.ConcurrencyError](err):
		return "error"
	default:
		return "error"
	}
}

// bidError maps a missing listing onto the client-facing taxonomy.
func bidError(err error) error {
	if errors.Is(err, domain.ErrListingNotFound) {
		return &domain.StateConflictError{
			Code:    domain.ReasonAuctionNotActive,
			Message: "listing not found",
		}
	}
	return err
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
