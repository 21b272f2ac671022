package gate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedSource отвечает решениями из списка, повторяя последнее.
type scriptedSource struct {
	decisions []Decision
	polls     atomic.Int32
}

func (s *scriptedSource) Poll(_ context.Context, _ string) (Decision, error) {
	n := int(s.polls.Add(1)) - 1
	if n >= len(s.decisions) {
		n = len(s.decisions) - 1
	}
	return s.decisions[n], nil
}

func newTestWaiter(src Source) *Waiter {
	return NewWaiter(Config{
		Source:       src,
		GraceDelay:   -1,
		PollInterval: 5 * time.Millisecond,
	})
}

func TestAwait_PassedAfterPending(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{
		{State: StatePending},
		{State: StatePending},
		{State: StatePassed},
	}}

	result, err := newTestWaiter(src).Await(context.Background(), "task-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPassed {
		t.Fatalf("expected Passed, got %s", result.Status)
	}
	if result.Polls != 3 {
		t.Errorf("expected 3 polls, got %d", result.Polls)
	}
	if result.Err() != nil {
		t.Errorf("Passed should have no error, got %v", result.Err())
	}
}

func TestAwait_Rejected(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{{State: StateRejected, Reason: "coverage"}}}

	result, err := newTestWaiter(src).Await(context.Background(), "task-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusRejected || result.Reason != "coverage" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !errors.Is(result.Err(), ErrGateRejected) {
		t.Errorf("expected ErrGateRejected, got %v", result.Err())
	}
}

func TestAwait_NeverRespondsTimesOut(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{{State: StatePending}}}
	timeout := 60 * time.Millisecond

	start := time.Now()
	result, err := newTestWaiter(src).Await(context.Background(), "task-1", timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusTimedOut {
		t.Fatalf("expected TimedOut, got %s", result.Status)
	}
	if elapsed := time.Since(start); elapsed < timeout || elapsed > timeout+time.Second {
		t.Errorf("wait should be bounded by timeout, took %s", elapsed)
	}
	if !errors.Is(result.Err(), ErrGateTimedOut) {
		t.Errorf("expected ErrGateTimedOut, got %v", result.Err())
	}
}

func TestAwait_LateDecisionNotHonored(t *testing.T) {
	timeout := 50 * time.Millisecond

	// Решение приходит в момент T + ε: источник игнорирует контекст
	src := SourceFunc(func(_ context.Context, _ string) (Decision, error) {
		time.Sleep(timeout + 20*time.Millisecond)
		return Decision{State: StatePassed}, nil
	})

	result, err := newTestWaiter(src).Await(context.Background(), "task-1", timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusTimedOut {
		t.Fatalf("late decision must not be honored, got %s", result.Status)
	}
}

func TestAwait_PassedAfterDeadlineIsTimedOut(t *testing.T) {
	timeout := 40 * time.Millisecond
	start := time.Now()

	// Pending до дедлайна, затем Passed
	src := SourceFunc(func(_ context.Context, _ string) (Decision, error) {
		if time.Since(start) < timeout+10*time.Millisecond {
			return Decision{State: StatePending}, nil
		}
		return Decision{State: StatePassed}, nil
	})

	result, err := newTestWaiter(src).Await(context.Background(), "task-1", timeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusTimedOut {
		t.Fatalf("expected TimedOut, got %s", result.Status)
	}
}

func TestAwait_GraceDelayBeforeFirstPoll(t *testing.T) {
	grace := 40 * time.Millisecond
	var firstPoll time.Duration
	start := time.Now()

	src := SourceFunc(func(_ context.Context, _ string) (Decision, error) {
		firstPoll = time.Since(start)
		return Decision{State: StatePassed}, nil
	})

	w := NewWaiter(Config{Source: src, GraceDelay: grace, PollInterval: time.Millisecond})
	result, err := w.Await(context.Background(), "task-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPassed {
		t.Fatalf("expected Passed, got %s", result.Status)
	}
	if firstPoll < grace {
		t.Errorf("first poll should happen after grace delay, happened at %s", firstPoll)
	}
}

func TestAwait_GraceDelayCountsTowardsTimeout(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{{State: StatePassed}}}
	w := NewWaiter(Config{Source: src, GraceDelay: 200 * time.Millisecond})

	result, err := w.Await(context.Background(), "task-1", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusTimedOut {
		t.Fatalf("expected TimedOut, got %s", result.Status)
	}
	if src.polls.Load() != 0 {
		t.Errorf("no poll expected, got %d", src.polls.Load())
	}
}

func TestAwait_SourceErrorsKeepPolling(t *testing.T) {
	var calls atomic.Int32
	src := SourceFunc(func(_ context.Context, _ string) (Decision, error) {
		if calls.Add(1) < 3 {
			return Decision{}, ErrSourceUnavailable
		}
		return Decision{State: StatePassed}, nil
	})

	result, err := newTestWaiter(src).Await(context.Background(), "task-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPassed || result.Polls != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAwait_ContextCancelled(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{{State: StatePending}}}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestWaiter(src).Await(ctx, "task-1", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAwait_InvalidTimeout(t *testing.T) {
	src := &scriptedSource{decisions: []Decision{{State: StatePassed}}}
	if _, err := newTestWaiter(src).Await(context.Background(), "task-1", 0); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("expected ErrInvalidTimeout, got %v", err)
	}
}

func TestNewWaiter_Defaults(t *testing.T) {
	w := NewWaiter(Config{})
	if w.graceDelay != defaultGraceDelay {
		t.Errorf("expected default grace delay %s, got %s", defaultGraceDelay, w.graceDelay)
	}
	if w.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %s, got %s", defaultPollInterval, w.pollInterval)
	}
}
