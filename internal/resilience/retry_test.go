package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	cfg := DefaultRetryConfig()
	callCount := 0

	result, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %s", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Millisecond),
	}
	callCount := 0

	result, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		if callCount < 3 {
			return "", errors.New("temporary error")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %s", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_ExceedsMaxAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Millisecond),
	}
	callCount := 0
	testErr := errors.New("persistent error")

	_, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "", testErr
	})

	if !errors.Is(err, testErr) {
		t.Errorf("expected testErr, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	terminal := errors.New("client defect")
	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Millisecond),
		RetryIf:     func(err error) bool { return !errors.Is(err, terminal) },
	}
	callCount := 0

	_, err := Retry(context.Background(), cfg, func() (string, error) {
		callCount++
		return "", terminal
	})

	if !errors.Is(err, terminal) {
		t.Errorf("expected terminal error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("terminal errors must not be retried, got %d calls", callCount)
	}
}

func TestRetry_ContextCancelsBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}
	callCount := 0

	start := time.Now()
	_, err := Retry(ctx, cfg, func() (string, error) {
		callCount++
		return "", errors.New("flaky")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected the deadline to short-circuit retries, got %d calls", callCount)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("backoff wait did not abort on context expiry")
	}
}

func TestLinearBackoff_GrowsByStep(t *testing.T) {
	backoff := LinearBackoff(500 * time.Millisecond)

	for attempt, want := range map[int]time.Duration{
		1: 500 * time.Millisecond,
		2: 1 * time.Second,
		3: 1500 * time.Millisecond,
	} {
		if got := backoff(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Millisecond),
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			attempts = append(attempts, attempt)
		},
	}

	_, _ = Retry(context.Background(), cfg, func() (string, error) {
		return "", errors.New("flaky")
	})

	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected callbacks for attempts 1 and 2, got %v", attempts)
	}
}
