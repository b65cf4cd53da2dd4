package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"seedkeeper/internal/retry"
	"seedkeeper/internal/services"
)

func TestDoRetriesTransientFailures(t *testing.T) {
	var slept []time.Duration
	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "tracker", "fetch", "", errors.New("boom"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(slept))
	}
	if slept[1] < slept[0] {
		t.Fatalf("expected non-decreasing backoff, got %v then %v", slept[0], slept[1])
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	calls := 0
	wantErr := services.Wrap(services.ErrValidation, "quality", "score", "bad input", nil)
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if calls != 1 {
		t.Fatalf("permanent error should not retry, got %d attempts", calls)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := retry.Default()
	policy.Sleep = func(time.Duration) {}
	err := policy.Do(ctx, func(context.Context) error {
		t.Fatal("fn should not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoReturnsLastTransientError(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	err := policy.Do(context.Background(), func(context.Context) error {
		return services.Wrap(services.ErrTimeout, "transfer", "list", "", nil)
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
