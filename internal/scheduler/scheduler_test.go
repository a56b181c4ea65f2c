package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradekaro/internal/metrics"
)

func TestAdd_Validation(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		task Task
	}{
		{"missing name", Task{Interval: time.Second, Run: noop}},
		{"missing run", Task{Name: "x", Interval: time.Second}},
		{"zero interval", Task{Name: "x", Run: noop}},
		{"negative interval", Task{Name: "x", Interval: -time.Second, Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.task); err == nil {
				t.Error("expected error")
			}
		})
	}
	if err := s.Add(Task{Name: "ok", Interval: time.Second, Run: noop}); err != nil {
		t.Errorf("valid task: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	s := New(zerolog.Nop(), metrics.NewRecorder())
	var order []string
	for _, name := range []string{"prices", "orders", "expiry"} {
		name := name
		_ = s.Add(Task{Name: name, Interval: time.Minute, Run: func(context.Context) error {
			order = append(order, name)
			if name == "orders" {
				return errors.New("boom")
			}
			return nil
		}})
	}

	s.RunOnce(context.Background())

	if len(order) != 3 || order[0] != "prices" || order[2] != "expiry" {
		t.Errorf("run order = %v", order)
	}
	stats := s.Stats()
	if stats[1].Runs != 1 || stats[1].Failed != 1 || stats[0].Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	var runs atomic.Int32
	_ = s.Add(Task{Name: "tick", Interval: 2 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if runs.Load() < 3 {
		t.Errorf("runs = %d, want at least 3", runs.Load())
	}
	if err := s.Add(Task{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }}); err != nil {
		t.Errorf("Add after stop: %v", err)
	}
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	s := New(zerolog.Nop(), metrics.NewRecorder())
	release := make(chan struct{})
	var active, maxActive atomic.Int32
	_ = s.Add(Task{Name: "slow", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Stats()[0].Skipped < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	cancel()
	<-done

	st := s.Stats()[0]
	if st.Skipped < 3 {
		t.Errorf("skipped = %d, want at least 3", st.Skipped)
	}
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive.Load())
	}
}

func TestRun_RejectsSecondRun(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	_ = s.Add(Task{Name: "tick", Interval: time.Hour, Run: func(context.Context) error { return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Run(ctx); err == nil {
		t.Error("second Run should fail while the first is active")
	}
	cancel()
	<-done
}
