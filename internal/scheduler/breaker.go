package scheduler

import (
	"sync"
	"time"
)

// BreakerState is the state of a task's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"    // task runs every tick
	BreakerOpen     BreakerState = "OPEN"      // task paused after repeated failures
	BreakerHalfOpen BreakerState = "HALF_OPEN" // one probe run allowed
)

// BreakerConfig holds circuit breaker settings applied to every task.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker. 0 disables it.
	FailureThreshold int
	// SuccessThreshold probe successes in half-open close it again.
	SuccessThreshold int
	// Cooldown is how long an open breaker pauses the task.
	Cooldown time.Duration
}

// DefaultBreakerConfig pauses a task for 30s after five straight failures.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// breaker stops a persistently failing task from running on every tick.
type breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

func newBreaker(cfg BreakerConfig, now func() time.Time) *breaker {
	return &breaker{cfg: cfg, now: now, state: BreakerClosed}
}

// allow reports whether the task may run now, moving an open breaker to
// half-open once the cooldown has passed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.transition(BreakerHalfOpen)
	}
	return true
}

// record updates the breaker with the outcome of a run and returns the
// resulting state.
func (b *breaker) record(err error) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.FailureThreshold <= 0 {
		return b.state
	}

	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(BreakerClosed)
			}
		case BreakerClosed:
			b.failures = 0
		}
		return b.state
	}

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
	}
	return b.state
}

func (b *breaker) transition(state BreakerState) {
	b.state = state
	b.failures = 0
	b.successes = 0
	if state == BreakerOpen {
		b.openedAt = b.now()
	}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
