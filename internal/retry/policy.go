package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"seedkeeper/internal/services"
)

// Policy is an explicit retry policy value passed into network call sites.
// The zero value is unusable; use Default or construct all fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep overrides how delays are performed (tests inject a recorder).
	Sleep func(time.Duration)
}

// Default returns the policy used for tracker and transfer client calls:
// three attempts with exponential backoff capped at ten seconds.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn up to MaxAttempts times, backing off exponentially between
// attempts. Only transient failures (per the services taxonomy) are retried;
// context cancellation and permanent errors return immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if !services.IsTransient(lastErr) {
			return lastErr
		}
		if attempt < attempts-1 {
			sleep(p.delay(attempt))
		}
	}
	return lastErr
}

// delay returns the jittered backoff for a zero-based attempt index.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Up to 25% jitter spreads concurrent loops hitting the same endpoint.
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
