package usersync

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig tunes the delay performSync waits between
// precondition-failure retries. A zero Base disables backoff entirely,
// matching spec.md §4.5's literal "retry until success" baseline; this
// type only exists because hammering the remote store immediately on
// every retry is a poor default for a real deployment (spec.md §9, Open
// Question 2).
type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the computed delay to randomize, e.g. 0.2
}

// DefaultBackoffConfig is a short exponential backoff, grounded on the
// teacher's exponentialBackoff helper in manager.go.
var DefaultBackoffConfig = BackoffConfig{
	Base:   50 * time.Millisecond,
	Max:    2 * time.Second,
	Jitter: 0.2,
}

func (c BackoffConfig) enabled() bool { return c.Base > 0 }

func (c BackoffConfig) delay(attempt int) time.Duration {
	if !c.enabled() {
		return 0
	}
	d := float64(c.Base) * math.Pow(2, float64(attempt-1))
	if c.Max > 0 && d > float64(c.Max) {
		d = float64(c.Max)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// backoff blocks for this attempt's computed delay, or until ctx is
// cancelled, whichever comes first. It is a no-op when backoff is
// disabled.
func (e *Engine) backoff(ctx context.Context, attempt int) {
	d := e.backoffConfig.delay(attempt)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Engine) exceededRetryCap(attempts int) bool {
	return e.retryCap > 0 && attempts >= e.retryCap
}
