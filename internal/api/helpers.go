package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

type contextKey string

const requestIDKey contextKey = "req_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func readJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func respondError(w http.ResponseWriter, statusCode int, reason, message string) {
	respondJSON(w, statusCode, errorBody{Error: message, Reason: reason})
}

// respondDomainError maps the error taxonomy onto HTTP statuses with
// machine reason codes, so clients can tell "outbid" from "ended" from
// "too low".
func respondDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrListingNotFound) {
		respondError(w, http.StatusNotFound, "", "listing not found")
		return
	}

	var (
		validation *domain.ValidationError
		authz      *domain.AuthorizationError
		conflict   *domain.StateConflictError
		contention *domain.ConcurrencyError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Reason(), validation.Error())
	case errors.As(err, &authz):
		respondError(w, http.StatusForbidden, authz.Reason(), authz.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, conflict.Reason(), conflict.Error())
	case errors.As(err, &contention):
		respondError(w, http.StatusServiceUnavailable, "", "listing is busy, retry shortly")
	default:
		log.Error().Err(err).Msg("internal error")
		respondError(w, http.StatusServiceUnavailable, "", "internal error")
	}
}
