// Package backoff provides the clock-injectable retry policy used when
// listing-row contention surfaces as a ConcurrencyError.
package backoff

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy is a bounded exponential backoff: attempt n (0-based) waits
// Base<<n, capped at Max, for at most MaxAttempts attempts total.
type Policy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultPolicy matches the documented contention-retry defaults.
func DefaultPolicy() Policy {
	return Policy{Base: 10 * time.Millisecond, Max: 160 * time.Millisecond, MaxAttempts: 3}
}

// Delay returns the wait before retry attempt n (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
