package opensky

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func transientErr() error {
	return &APIError{Type: ErrTypeNetwork, Message: "connection reset"}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestRetryTransientFirstTrySuccess(t *testing.T) {
	calls := 0
	result, err := RetryTransient(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryTransient() failed: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("result = %q after %d calls, expected ok after 1", result, calls)
	}
}

func TestRetryTransientRecovers(t *testing.T) {
	calls := 0
	result, err := RetryTransient(context.Background(), fastRetry(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, transientErr()
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("RetryTransient() failed: %v", err)
	}
	if result != 42 || calls != 3 {
		t.Errorf("result = %d after %d calls, expected 42 after 3", result, calls)
	}
}

func TestRetryTransientStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &APIError{Type: ErrTypeOpenSky, StatusCode: http.StatusUnauthorized, Message: "bad credentials"}
	_, err := RetryTransient(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "", permanent
	})
	if calls != 1 {
		t.Errorf("fn called %d times, expected permanent errors to short-circuit", calls)
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr != permanent {
		t.Errorf("error = %v, expected the permanent error unchanged", err)
	}
}

func TestRetryTransientPlainErrorsNotRetried(t *testing.T) {
	calls := 0
	_, err := RetryTransient(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "", errors.New("logic bug")
	})
	if calls != 1 {
		t.Errorf("fn called %d times, expected 1", calls)
	}
	if err == nil || err.Error() != "logic bug" {
		t.Errorf("error = %v", err)
	}
}

func TestRetryTransientExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryTransient(context.Background(), fastRetry(), func() (string, error) {
		calls++
		return "", transientErr()
	})
	if calls != 3 {
		t.Errorf("fn called %d times, expected 3", calls)
	}
	if err == nil || !strings.Contains(err.Error(), "all 3 attempts failed") {
		t.Errorf("error = %v, expected attempt exhaustion", err)
	}
	if _, ok := AsAPIError(err); !ok {
		t.Errorf("wrapped error lost the APIError: %v", err)
	}
}

func TestRetryTransientContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := RetryTransient(ctx, RetryConfig{MaxAttempts: 3, Delay: time.Second}, func() (string, error) {
		calls++
		cancel()
		return "", transientErr()
	})
	if calls != 1 {
		t.Errorf("fn called %d times, expected cancellation before the second attempt", calls)
	}
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, expected a context cancellation", err)
	}
}

func TestRetryTransientBacksOffLinearly(t *testing.T) {
	const delay = 20 * time.Millisecond
	start := time.Now()
	calls := 0
	RetryTransient(context.Background(), RetryConfig{MaxAttempts: 3, Delay: delay}, func() (string, error) {
		calls++
		return "", transientErr()
	})
	elapsed := time.Since(start)

	// attempt 2 waits 1*delay, attempt 3 waits 2*delay
	if want := 3 * delay; elapsed < want {
		t.Errorf("elapsed = %v, expected at least %v of backoff", elapsed, want)
	}
}
