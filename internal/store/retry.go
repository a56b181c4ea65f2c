package store

import (
	"context"
	"math"
	"time"
)

// retryPolicy controls how connection attempts to a backing store are
// repeated.
type retryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		Attempts: 3,
		Initial:  100 * time.Millisecond,
		Max:      2 * time.Second,
		Factor:   2.0,
	}
}

// backoff returns the wait before attempt n+1, capped at Max.
func (p retryPolicy) backoff(n int) time.Duration {
	d := float64(p.Initial) * math.Pow(p.Factor, float64(n))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

// retry calls fn until it succeeds, the attempts run out or ctx is done.
// The last error from fn is returned.
func retry(ctx context.Context, p retryPolicy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n == attempts-1 {
			break
		}
		timer := time.NewTimer(p.backoff(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
