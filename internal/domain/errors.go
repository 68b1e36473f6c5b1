package domain

import (
	"errors"
	"fmt"
)

// Machine-readable reason codes returned to clients.
const (
	ReasonInvalidInput     = "invalid_input"
	ReasonNotAuthorized    = "not_authorized"
	ReasonBidTooLow        = "bid_too_low"
	ReasonAuctionNotActive = "auction_not_active"
)

// ValidationError indicates a malformed request shape.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Reason returns the client-facing reason code.
func (e *ValidationError) Reason() string { return ReasonInvalidInput }

// AuthorizationError indicates the caller lacks the bidder or
// privileged-scheduler capability.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string  { return e.Message }
func (e *AuthorizationError) Reason() string { return ReasonNotAuthorized }

// StateConflictError indicates the listing is not in the required
// status, the auction window is closed, or the bid is below minimum.
type StateConflictError struct {
	Code    string // ReasonBidTooLow or ReasonAuctionNotActive
	Message string
}

func (e *StateConflictError) Error() string  { return e.Message }
func (e *StateConflictError) Reason() string { return e.Code }

// ConcurrencyError indicates lock contention on a listing row. Retried
// internally with bounded backoff; surfaced only when retries exhaust.
type ConcurrencyError struct {
	Message string
	Cause   error
}

func (e *ConcurrencyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConcurrencyError) Unwrap() error { return e.Cause }

// DependencyError indicates a best-effort collaborator (broadcast,
// settlement) failed. Logged, never rolled back.
type DependencyError struct {
	Dependency string
	Cause      error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Cause)
}

func (e *DependencyError) Unwrap() error { return e.Cause }

// PersistenceError indicates the underlying store is unavailable.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// ErrListingNotFound is returned by stores for unknown listing ids.
var ErrListingNotFound = errors.New("listing not found")

// ReasonOf extracts the machine reason code from a client-facing error,
// or "" when err is not client-facing.
func ReasonOf(err error) string {
	type reasoner interface{ Reason() string }
	var r reasoner
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ""
}
