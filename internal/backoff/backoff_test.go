package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayGrowsExponentiallyToCap(t *testing.T) {
	p := Policy{Base: 10 * time.Millisecond, Max: 160 * time.Millisecond, MaxAttempts: 10}

	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 20*time.Millisecond, p.Delay(1))
	assert.Equal(t, 40*time.Millisecond, p.Delay(2))
	assert.Equal(t, 80*time.Millisecond, p.Delay(3))
	assert.Equal(t, 160*time.Millisecond, p.Delay(4))
	assert.Equal(t, 160*time.Millisecond, p.Delay(5))
	assert.Equal(t, 160*time.Millisecond, p.Delay(20))
}

func TestDelayNegativeAttemptUsesBase(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, p.Base, p.Delay(-3))
}

func TestSystemClockSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
