package utils

import (
	"context"
	"math"
	"time"
)

// Backoff is an exponential retry schedule: Base, Base·Multiplier, ...,
// capped at Max.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// NewBackoff fills in a multiplier of 2 and a cap of 30s when unset.
func NewBackoff(base, max time.Duration, multiplier float64) Backoff {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return Backoff{Base: base, Max: max, Multiplier: multiplier}
}

// Delay returns the wait before retry number attempt (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// Retry calls fn up to retries+1 times, sleeping Delay(i) between calls,
// until fn succeeds or ctx is done. It returns the last error.
func (b Backoff) Retry(ctx context.Context, retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(b.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
