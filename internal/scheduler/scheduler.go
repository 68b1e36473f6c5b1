// Package scheduler drives listing lifecycle transitions. Each tick
// runs a start pass (draft→active) and an end pass (active→ended) over
// due listings. Both passes are idempotent: the CAS transition makes a
// concurrent or repeated tick a no-op per listing, and one listing's
// failure never aborts the rest of the batch.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sss97133/nuke-sub012/internal/backoff"
	"github.com/sss97133/nuke-sub012/internal/domain"
	"github.com/sss97133/nuke-sub012/internal/events"
	"github.com/sss97133/nuke-sub012/internal/obs"
	"github.com/sss97133/nuke-sub012/internal/store"
)

// MaxBatchSize caps both passes regardless of what the caller asks for.
const MaxBatchSize = 200

// DefaultParallelism bounds concurrent per-listing transitions within a
// pass. Cross-listing operations never contend, so this is purely a
// throughput knob.
const DefaultParallelism = 8

// Settlement is the external payment collaborator. Handoff is
// fire-and-forget: it is not required to complete before the ended
// transition commits.
type Settlement interface {
	Settle(ctx context.Context, l domain.Listing) error
}

// NopSettlement discards handoffs.
type NopSettlement struct{}

func (NopSettlement) Settle(context.Context, domain.Listing) error { return nil }

// TickRequest is one scheduler invocation. Batch sizes are clamped to
// MaxBatchSize; zero means "up to the maximum". DryRun computes the
// due sets without committing transitions.
type TickRequest struct {
	StartBatchSize int  `json:"start_batch_size"`
	EndBatchSize   int  `json:"end_batch_size"`
	DryRun         bool `json:"dry_run"`
}

// TickReport aggregates per-listing results. Partial failures never
// fail the tick; only store unreachability does.
type TickReport struct {
	Started     int      `json:"started"`
	StartFailed int      `json:"start_failed"`
	Ended       int      `json:"ended"`
	EndFailed   int      `json:"end_failed"`
	StartIDs    []string `json:"start_ids"`
	EndIDs      []string `json:"end_ids"`
	Errors      []string `json:"errors"`
	DryRun      bool     `json:"dry_run"`
}

// Scheduler runs lifecycle passes against the store.
type Scheduler struct {
	store       store.Store
	emitter     events.Emitter
	settlement  Settlement
	metrics     *obs.Metrics // may be nil
	clock       backoff.Clock
	parallelism int
}

// Config wires a Scheduler. Store is required; nil collaborators fall
// back to no-ops.
type Config struct {
	Store       store.Store
	Emitter     events.Emitter
	Settlement  Settlement
	Metrics     *obs.Metrics
	Clock       backoff.Clock
	Parallelism int
}

func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = backoff.SystemClock{}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.Nop{}
	}
	if cfg.Settlement == nil {
		cfg.Settlement = NopSettlement{}
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Scheduler{
		store:       cfg.Store,
		emitter:     cfg.Emitter,
		settlement:  cfg.Settlement,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		parallelism: cfg.Parallelism,
	}
}

func clampBatch(n int) int {
	if n <= 0 || n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// Tick runs the start pass then the end pass. Safe to invoke
// repeatedly and concurrently.
func (s *Scheduler) Tick(ctx context.Context, req TickRequest) (TickReport, error) {
	report := TickReport{DryRun: req.DryRun}
	now := s.clock.Now()

	if err := s.startPass(ctx, now, clampBatch(req.StartBatchSize), req.DryRun, &report); err != nil {
		return report, err
	}
	if err := s.endPass(ctx, now, clampBatch(req.EndBatchSize), req.DryRun, &report); err != nil {
		return report, err
	}

	log.Info().
		Int("started", report.Started).
		Int("start_failed", report.StartFailed).
		Int("ended", report.Ended).
		Int("end_failed", report.EndFailed).
		Bool("dry_run", report.DryRun).
		Msg("scheduler tick")
	return report, nil
}

func (s *Scheduler) startPass(ctx context.Context, now time.Time, limit int, dryRun bool, report *TickReport) error {
	start := s.clock.Now()
	defer s.observe("tick_start", start)

	ids, err := s.store.DueStarts(ctx, now, limit)
	if err != nil {
		return err
	}
	if dryRun {
		report.StartIDs = ids
		report.Started = len(ids)
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			l, swapped, err := s.store.TransitionStatus(gctx, id, domain.StatusDraft, domain.StatusActive, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.StartFailed++
				report.Errors = append(report.Errors, fmt.Sprintf("start %s: %v", id, err))
				s.countTransition("start", "fail")
			case swapped:
				report.Started++
				report.StartIDs = append(report.StartIDs, id)
				s.countTransition("start", "success")
				if s.metrics != nil {
					s.metrics.ActiveListings.Inc()
				}
				s.emit(gctx, domain.Event{
					EventID:    uuid.NewString(),
					Type:       domain.EventAuctionStarted,
					ListingID:  l.ID,
					OccurredAt: now,
					NewEndTime: l.AuctionEndTime,
				})
			default:
				// Another invocation won the CAS: success-no-op.
				s.countTransition("start", "noop")
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) endPass(ctx context.Context, now time.Time, limit int, dryRun bool, report *TickReport) error {
	start := s.clock.Now()
	defer s.observe("tick_end", start)

	ids, err := s.store.DueEnds(ctx, now, limit)
	if err != nil {
		return err
	}
	if dryRun {
		report.EndIDs = ids
		report.Ended = len(ids)
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			l, swapped, err := s.store.TransitionStatus(gctx, id, domain.StatusActive, domain.StatusEnded, now)
			mu.Lock()
			switch {
			case err != nil:
				report.EndFailed++
				report.Errors = append(report.Errors, fmt.Sprintf("end %s: %v", id, err))
				s.countTransition("end", "fail")
				mu.Unlock()
				return nil
			case !swapped:
				s.countTransition("end", "noop")
				mu.Unlock()
				return nil
			}
			report.Ended++
			report.EndIDs = append(report.EndIDs, id)
			s.countTransition("end", "success")
			if s.metrics != nil {
				s.metrics.ActiveListings.Dec()
			}
			mu.Unlock()

			// Winning the CAS means this invocation alone finalizes the
			// listing, so the ended event and settlement handoff fire
			// exactly once.
			s.emit(gctx, domain.Event{
				EventID:       uuid.NewString(),
				Type:          domain.EventAuctionEnded,
				ListingID:     l.ID,
				OccurredAt:    now,
				FinalBidCents: l.CurrentHighBidCents,
				WinnerID:      l.CurrentHighBidderID,
				BidCount:      l.BidCount,
			})
			if l.CurrentHighBidderID != "" {
				s.handoffSettlement(l)
			}
			return nil
		})
	}
	return g.Wait()
}

// handoffSettlement hands the final winner to the payment collaborator
// without blocking the pass.
func (s *Scheduler) handoffSettlement(l domain.Listing) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.settlement.Settle(ctx, l); err != nil {
			depErr := &domain.DependencyError{Dependency: "settlement", Cause: err}
			log.Warn().Err(depErr).Str("listing_id", l.ID).Msg("settlement handoff failed")
		}
	}()
}

func (s *Scheduler) emit(ctx context.Context, ev domain.Event) {
	if err := s.emitter.Emit(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.EmitFailures.Inc()
		}
		log.Warn().Err(err).Str("type", string(ev.Type)).Str("listing_id", ev.ListingID).Msg("event emit failed")
	}
}

func (s *Scheduler) countTransition(pass, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.TransitionsTotal.WithLabelValues(pass, result).Inc()
}

func (s *Scheduler) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(s.clock.Now().Sub(start).Milliseconds()))
}

// RunPeriodic ticks on a fixed interval until ctx is cancelled. The
// production trigger is an external cron caller hitting the HTTP
// endpoint; this is for deployments without one.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Tick(ctx, TickRequest{}); err != nil {
				log.Error().Err(err).Msg("periodic tick failed")
			}
		}
	}
}
