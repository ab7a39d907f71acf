package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep collects requested sleep durations without sleeping.
func recordingSleep(sleeps *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)

		return nil
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	policy := NewBackoffPolicy(3, 2*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 4, want: 10 * time.Second}, // clamped to MaxDelay
		{attempt: 5, want: 10 * time.Second},
		{attempt: 0, want: 2 * time.Second}, // below range clamps to first
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var sleeps []time.Duration

	calls := 0

	err := Retry(context.Background(), NewBackoffPolicy(3, 2*time.Second), recordingSleep(&sleeps),
		func(context.Context) error {
			calls++

			return nil
		})
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}

	if len(sleeps) != 0 {
		t.Errorf("slept %d times, want 0", len(sleeps))
	}
}

func TestRetry_TransientFailuresThenSuccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var sleeps []time.Duration

	calls := 0

	err := Retry(context.Background(), NewBackoffPolicy(3, 2*time.Second), recordingSleep(&sleeps),
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}

			return nil
		})
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("slept %d times, want %d", len(sleeps), len(want))
	}

	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %s, want %s", i, sleeps[i], want[i])
		}
	}
}

func TestRetry_Exhaustion(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var sleeps []time.Duration

	wantErr := errors.New("still down")
	calls := 0

	err := Retry(context.Background(), NewBackoffPolicy(3, 2*time.Second), recordingSleep(&sleeps),
		func(context.Context) error {
			calls++

			return wantErr
		})

	if !errors.Is(err, wantErr) {
		t.Errorf("Retry() = %v, want last error %v", err, wantErr)
	}

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}

	// No sleep after the final attempt.
	if len(sleeps) != 2 {
		t.Errorf("slept %d times, want 2", len(sleeps))
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var sleeps []time.Duration

	wantErr := errors.New("duplicate key")
	calls := 0

	err := Retry(context.Background(), NewBackoffPolicy(3, 2*time.Second), recordingSleep(&sleeps),
		func(context.Context) error {
			calls++

			return Permanent(wantErr)
		})

	if !errors.Is(err, wantErr) {
		t.Errorf("Retry() = %v, want unwrapped %v", err, wantErr)
	}

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}

	if len(sleeps) != 0 {
		t.Errorf("slept %d times, want 0", len(sleeps))
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0

	err := Retry(ctx, NewBackoffPolicy(3, 2*time.Second), nil, func(context.Context) error {
		calls++

		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}

	if calls != 0 {
		t.Errorf("op called %d times, want 0", calls)
	}
}

func TestPermanent_NilPassthrough(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
