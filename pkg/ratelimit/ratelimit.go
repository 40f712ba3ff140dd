package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter paces operations at a fixed rate with optional random jitter, so
// outbound traffic doesn't tick with machine regularity. Safe for concurrent
// use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// New creates a limiter allowing rps operations per second. jitter is
// clamped to [0, 1] and randomizes each wait by up to that fraction of the
// interval. rps <= 0 yields a limiter that never blocks.
func New(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Wait blocks until the next operation may run, or until ctx is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return l.sleepJitter(ctx)
	}
}

// sleepJitter adds a random extra delay after a tick. Negative draws mean
// "run now": the ticker already enforces the minimum spacing, so early
// release isn't possible, only late.
func (l *Limiter) sleepJitter(ctx context.Context) error {
	if l.jitter <= 0 {
		return nil
	}

	factor := (rand.Float64() * 2) - 1.0 // -1.0 to 1.0
	extra := time.Duration(float64(l.interval) * l.jitter * factor)
	if extra <= 0 {
		return nil
	}

	select {
	case <-time.After(extra):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
