package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	p := retryPolicy{Attempts: 4, Initial: time.Millisecond, Max: time.Millisecond, Factor: 2}
	calls := 0
	err := retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	p := retryPolicy{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond, Factor: 2}
	calls := 0
	last := errors.New("second")
	err := retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("first")
		}
		return last
	})
	if err != last || calls != 2 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retryPolicy{Attempts: 5, Initial: time.Hour, Max: time.Hour, Factor: 2}
	calls := 0
	err := retry(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := retryPolicy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for n, w := range want {
		if got := p.backoff(n); got != w {
			t.Errorf("backoff(%d) = %s, want %s", n, got, w)
		}
	}
}
