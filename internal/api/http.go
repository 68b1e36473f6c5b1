// Package api exposes the engine over HTTP: bid placement, the
// privileged scheduler trigger, listing reads, and listing admin.
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sss97133/nuke-sub012/internal/cache"
	"github.com/sss97133/nuke-sub012/internal/domain"
	"github.com/sss97133/nuke-sub012/internal/engine"
	"github.com/sss97133/nuke-sub012/internal/identity"
	"github.com/sss97133/nuke-sub012/internal/scheduler"
	"github.com/sss97133/nuke-sub012/internal/store"
)

// Server wires the HTTP surface to the engine and scheduler.
type Server struct {
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	store     store.Store
	cache     *cache.Client // may be nil
	verifier  identity.Verifier
}

func NewServer(eng *engine.Engine, sched *scheduler.Scheduler, st store.Store, c *cache.Client, verifier identity.Verifier) *Server {
	return &Server{
		engine:    eng,
		scheduler: sched,
		store:     st,
		cache:     c,
		verifier:  verifier,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/listings", s.CreateListing).Methods("POST")
	api.HandleFunc("/listings/{id}", s.GetListing).Methods("GET")
	api.HandleFunc("/listings/{id}/bid", s.PlaceBid).Methods("POST")
	api.HandleFunc("/listings/{id}/bids", s.ListBids).Methods("GET")
	api.HandleFunc("/listings/{id}/cancel", s.CancelListing).Methods("POST")
	api.HandleFunc("/scheduler/tick", s.SchedulerTick).Methods("POST")

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)

	return router
}

// HealthCheck also pings the store so load balancers drop an instance
// whose database is gone.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "", "store unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type bidRequest struct {
	ProxyMaxBidCents int64 `json:"proxy_max_bid_cents"`
}

type bidResponse struct {
	Success           bool      `json:"success"`
	DisplayedBidCents int64     `json:"displayed_bid_cents"`
	BidCount          int64     `json:"bid_count"`
	YouAreHigh        bool      `json:"you_are_high"`
	AuctionExtended   bool      `json:"auction_extended"`
	NewEndTime        time.Time `json:"new_end_time"`
}

// PlaceBid handles bid placement for an authenticated bidder.
func (s *Server) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	listingID := mux.Vars(r)["id"]

	var req bidRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "invalid request body")
		return
	}

	result, err := s.engine.PlaceBid(r.Context(), engine.PlaceBidRequest{
		ListingID:     listingID,
		BidderID:      id.UserID,
		ProxyMaxCents: req.ProxyMaxBidCents,
		Source:        "api",
		ClientIP:      r.RemoteAddr,
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, bidResponse{
		Success:           true,
		DisplayedBidCents: result.DisplayedBidCents,
		BidCount:          result.BidCount,
		YouAreHigh:        result.YouAreHigh,
		AuctionExtended:   result.AuctionExtended,
		NewEndTime:        result.NewEndTime,
	})
}

// SchedulerTick is the privileged external trigger for lifecycle
// passes. Partial batch errors come back in the report, not as an HTTP
// failure.
func (s *Server) SchedulerTick(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !id.Privileged {
		respondError(w, http.StatusForbidden, domain.ReasonNotAuthorized, "scheduler trigger requires a privileged caller")
		return
	}

	var req scheduler.TickRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "invalid request body")
		return
	}

	report, err := s.scheduler.Tick(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type createListingRequest struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	OpeningPriceCents int64     `json:"opening_price_cents"`
	ReservePriceCents int64     `json:"reserve_price_cents"`
	AuctionStartTime  time.Time `json:"auction_start_time"`
	AuctionEndTime    time.Time `json:"auction_end_time"`
}

// CreateListing creates a draft listing owned by the caller.
func (s *Server) CreateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "invalid request body")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "title required")
		return
	}
	if req.OpeningPriceCents < 0 || req.ReservePriceCents < 0 {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "prices must be >= 0")
		return
	}
	if !req.AuctionEndTime.After(req.AuctionStartTime) {
		respondError(w, http.StatusBadRequest, domain.ReasonInvalidInput, "auction_end_time must be after auction_start_time")
		return
	}

	now := time.Now().UTC()
	l := &domain.Listing{
		ID:                uuid.NewString(),
		SellerID:          id.UserID,
		Title:             req.Title,
		Description:       req.Description,
		Status:            domain.StatusDraft,
		OpeningPriceCents: req.OpeningPriceCents,
		ReservePriceCents: req.ReservePriceCents,
		AuctionStartTime:  req.AuctionStartTime,
		AuctionEndTime:    req.AuctionEndTime,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateListing(r.Context(), l); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

// GetListing serves the public snapshot, cache-first.
func (s *Server) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	if s.cache != nil {
		if snap, err := s.cache.GetSnapshot(r.Context(), listingID); err == nil {
			respondJSON(w, http.StatusOK, snap)
			return
		}
	}

	l, err := s.store.GetListing(r.Context(), listingID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	snap := cache.SnapshotOf(l)
	if s.cache != nil {
		if err := s.cache.SetSnapshot(r.Context(), l); err != nil {
			log.Warn().Err(err).Str("listing_id", l.ID).Msg("cache backfill failed")
		}
	}
	respondJSON(w, http.StatusOK, snap)
}

// ListBids serves the audit ledger for a listing, newest first.
func (s *Server) ListBids(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil && n <= 500 {
			limit = n
		}
	}

	bids, err := s.store.ListBids(r.Context(), listingID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"listing_id": listingID,
		"bids":       bids,
	})
}

// CancelListing performs the explicit cancel transition. Only the
// seller or a privileged caller may cancel.
func (s *Server) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	listingID := mux.Vars(r)["id"]

	l, err := s.store.GetListing(r.Context(), listingID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !id.Privileged && l.SellerID != id.UserID {
		respondError(w, http.StatusForbidden, domain.ReasonNotAuthorized, "only the seller may cancel")
		return
	}

	cancelled, err := s.engine.Cancel(r.Context(), listingID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cancelled)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := s.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, domain.ReasonNotAuthorized, "authentication required")
		return identity.Identity{}, false
	}
	return id, true
}
