package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ModelLimiter enforces a maximum number of model calls per run and
// optionally paces them with a token bucket.
type ModelLimiter struct {
	max     int
	count   int
	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewModelLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// WithRate attaches a token bucket allowing perSecond calls with the given burst.
// A non-positive perSecond leaves pacing disabled.
func (ml *ModelLimiter) WithRate(perSecond float64, burst int) *ModelLimiter {
	if perSecond <= 0 {
		return ml
	}
	if burst < 1 {
		burst = 1
	}
	ml.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return ml
}

// Acquire counts one model call, waiting on the token bucket if configured.
// It returns ErrModelCallLimit once the budget is exhausted.
func (ml *ModelLimiter) Acquire(ctx context.Context) error {
	if err := ml.Increment(); err != nil {
		return err
	}
	if ml.limiter != nil {
		return ml.limiter.Wait(ctx)
	}
	return nil
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count++
	if ml.max > 0 && ml.count > ml.max {
		return fmt.Errorf("%w: %d", ErrModelCallLimit, ml.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns how many calls are left before hitting the limit.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1 // unlimited
	}

	return ml.max - ml.count
}
