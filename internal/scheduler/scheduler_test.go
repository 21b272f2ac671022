package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	triggers []domain.Trigger
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, trigger domain.Trigger) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return domain.Run{}, f.err
	}
	f.triggers = append(f.triggers, trigger)
	return *domain.NewRun("aceest", trigger), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"*/15 * * * 1-5", false},
		{"@daily", false},
		{"every day", true},
		{"0 3 * *", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextFire(t *testing.T) {
	from := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)

	next, err := NextFire("0 3 * * *", from, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %s, got %s", want, next)
	}

	loc := time.FixedZone("UTC+3", 3*3600)
	next, err = NextFire("0 3 * * *", from, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %s, got %s", want, next)
	}
}

func TestTick_SubmitsDueSchedules(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)}
	sub := &fakeSubmitter{}

	s, err := New(Config{
		Schedules: []string{"0 3 * * *", "0 * * * *"},
		Submitter: sub,
		Now:       c.now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("expected nothing due, got %d", n)
	}

	c.t = time.Date(2026, 3, 10, 3, 0, 5, 0, time.UTC)
	if n := s.Tick(context.Background()); n != 1 {
		t.Fatalf("expected one run for the shared fire time, got %d", n)
	}
	if len(sub.triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(sub.triggers))
	}

	trig := sub.triggers[0]
	if trig.Source != domain.TriggerSourceSchedule {
		t.Errorf("expected schedule source, got %s", trig.Source)
	}
	if trig.BuildID != "sched-20260310T0300" {
		t.Errorf("unexpected build id %q", trig.BuildID)
	}

	if n := s.Tick(context.Background()); n != 0 {
		t.Errorf("expected no resubmit within the same minute, got %d", n)
	}

	if want := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
		t.Errorf("expected next %s, got %s", want, s.Next())
	}
}

func TestTick_ForgetsPastFires(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 0, 0, 30, 0, time.UTC)}
	sub := &fakeSubmitter{}

	s, err := New(Config{
		Schedules: []string{"* * * * *"},
		Submitter: sub,
		Now:       c.now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i <= 10; i++ {
		c.t = time.Date(2026, 3, 10, 0, i, 5, 0, time.UTC)
		if n := s.Tick(context.Background()); n != 1 {
			t.Fatalf("tick %d: expected one run, got %d", i, n)
		}
	}

	if len(sub.triggers) != 10 {
		t.Errorf("expected 10 triggers, got %d", len(sub.triggers))
	}
	s.mu.Lock()
	remembered := len(s.fired)
	s.mu.Unlock()
	if remembered != 0 {
		t.Errorf("expected past fires to be forgotten, %d remembered", remembered)
	}
}

func TestTick_SubmitErrorDoesNotBlock(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)}
	sub := &fakeSubmitter{err: errors.New("queue full")}

	s, err := New(Config{Schedules: []string{"0 3 * * *"}, Submitter: sub, Now: c.now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.t = c.t.Add(2 * time.Minute)
	if n := s.Tick(context.Background()); n != 0 {
		t.Errorf("expected 0 submitted, got %d", n)
	}
	if want := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
		t.Errorf("expected next %s, got %s", want, s.Next())
	}
}

func TestNew_InvalidExpression(t *testing.T) {
	_, err := New(Config{Schedules: []string{"61 * * * *"}, Submitter: &fakeSubmitter{}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(Config{Schedules: []string{"@hourly"}, Submitter: &fakeSubmitter{}, TickInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

type fakeLeader struct {
	leading bool
	err     error
	calls   int
}

func (l *fakeLeader) TryLead(context.Context) (bool, error) {
	l.calls++
	return l.leading, l.err
}

func TestRun_RequiresSubmitter(t *testing.T) {
	s, err := New(Config{Schedules: []string{"0 3 * * *"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, ErrNoSubmitter) {
		t.Fatalf("expected ErrNoSubmitter, got %v", err)
	}
}

func TestTick_FollowerOnlyAdvances(t *testing.T) {
	tests := []struct {
		name   string
		leader *fakeLeader
		want   int
	}{
		{name: "leader", leader: &fakeLeader{leading: true}, want: 1},
		{name: "follower", leader: &fakeLeader{}, want: 0},
		{name: "election error", leader: &fakeLeader{err: errors.New("db down")}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)}
			sub := &fakeSubmitter{}
			s, err := New(Config{Schedules: []string{"0 3 * * *"}, Submitter: sub, Leader: tt.leader, Now: c.now})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if n := s.Tick(context.Background()); n != 0 || tt.leader.calls != 0 {
				t.Fatalf("nothing due: expected no election, got %d submits and %d calls", n, tt.leader.calls)
			}

			c.t = time.Date(2026, 3, 10, 3, 0, 1, 0, time.UTC)
			if n := s.Tick(context.Background()); n != tt.want {
				t.Errorf("expected %d submitted, got %d", tt.want, n)
			}
			if want := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
				t.Errorf("expected next %s, got %s", want, s.Next())
			}
		})
	}
}
