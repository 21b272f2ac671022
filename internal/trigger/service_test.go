package trigger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/pipeline"
)

// blockingLoader строит pipeline, stage которого ждёт отмены или release.
type blockingLoader struct {
	release chan struct{}
	started chan struct{}
	loads   int
}

func newBlockingLoader() *blockingLoader {
	return &blockingLoader{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (l *blockingLoader) Load() (*pipeline.Pipeline, error) {
	l.loads++
	wait := pipeline.Func("wait", func(ctx context.Context, _ *pipeline.Runtime) error {
		l.started <- struct{}{}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-l.release:
			return nil
		}
	})
	return pipeline.New(pipeline.Definition{
		Name: "aceest",
		Stages: []pipeline.Stage{
			{Name: "Build", Actions: []pipeline.Action{wait}},
			{Name: "Deploy", Actions: []pipeline.Action{pipeline.Exec("kubectl", "apply")}},
		},
	})
}

func newService(l Loader, maxConcurrent int) *Service {
	return NewService(Config{
		Loader:        l,
		Runner:        pipeline.NewRunner(pipeline.Config{Executor: &executor.Recorder{}}),
		MaxConcurrent: maxConcurrent,
	})
}

func waitStarted(t *testing.T, l *blockingLoader) {
	t.Helper()
	select {
	case <-l.started:
	case <-time.After(time.Second):
		t.Fatal("run did not start")
	}
}

func waitOutcome(t *testing.T, s *Service, id uuid.UUID) domain.Outcome {
	t.Helper()
	exec, ok := s.Get(id)
	if !ok {
		t.Fatalf("run %s not found", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, err := exec.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return outcome
}

func TestSubmit_RunsToSuccess(t *testing.T) {
	l := newBlockingLoader()
	s := newService(l, 2)

	run, err := s.Submit(context.Background(), domain.Trigger{BuildID: " 42 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.RunStatusPending || run.ImageTag != "build-42" || run.Source != domain.TriggerSourceManual {
		t.Errorf("unexpected run: %+v", run)
	}

	waitStarted(t, l)
	close(l.release)

	if outcome := waitOutcome(t, s, run.ID); outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", outcome)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if s.Active() != 0 {
		t.Errorf("expected no active runs, got %d", s.Active())
	}
	if err := s.Cancel(run.ID); !errors.Is(err, ErrRunFinished) {
		t.Errorf("expected ErrRunFinished, got %v", err)
	}
}

func TestCancel_AbortsRun(t *testing.T) {
	l := newBlockingLoader()
	s := newService(l, 1)

	run, err := s.Submit(context.Background(), domain.Trigger{BuildID: "7", Source: domain.TriggerSourceSCM})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, l)

	if err := s.Cancel(run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	outcome := waitOutcome(t, s, run.ID)
	if outcome.Kind != domain.OutcomeAborted || outcome.Reason != pipeline.ReasonExternalAbort {
		t.Fatalf("expected Aborted(ExternalAbort), got %s", outcome)
	}
	if outcome.Stage != "Build" {
		t.Errorf("expected abort at Build, got %q", outcome.Stage)
	}
	if !strings.Contains(outcome.Detail, "cancelled by request") {
		t.Errorf("detail should name the cancel cause: %q", outcome.Detail)
	}

	exec, _ := s.Get(run.ID)
	if got := exec.Snapshot().Status; got != domain.RunStatusAborted {
		t.Errorf("expected ABORTED, got %s", got)
	}
}

func TestSubmit_ContextCancelDoesNotAbortRun(t *testing.T) {
	l := newBlockingLoader()
	s := newService(l, 1)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := s.Submit(ctx, domain.Trigger{BuildID: "8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, l)
	cancel()

	close(l.release)
	if outcome := waitOutcome(t, s, run.ID); outcome.Kind != domain.OutcomeSuccess {
		t.Fatalf("request cancellation must not abort the run, got %s", outcome)
	}
}

func TestSubmit_Limits(t *testing.T) {
	l := newBlockingLoader()
	s := newService(l, 1)
	defer close(l.release)

	if _, err := s.Submit(context.Background(), domain.Trigger{BuildID: "  "}); !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("expected ErrInvalidTrigger, got %v", err)
	}

	if _, err := s.Submit(context.Background(), domain.Trigger{BuildID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, l)

	if _, err := s.Submit(context.Background(), domain.Trigger{BuildID: "2"}); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("expected ErrTooManyRuns, got %v", err)
	}
	if l.loads != 1 {
		t.Errorf("rejected trigger should not load the pipeline, loads=%d", l.loads)
	}
}

func TestSubmit_LoadError(t *testing.T) {
	s := newService(LoaderFunc(func() (*pipeline.Pipeline, error) {
		return nil, errors.New("stage Deploy: missing deployment")
	}), 1)

	if _, err := s.Submit(context.Background(), domain.Trigger{BuildID: "1"}); err == nil {
		t.Fatal("expected error")
	}
	if s.Active() != 0 {
		t.Error("failed load must release the slot")
	}
}

func TestCancel_Unknown(t *testing.T) {
	s := newService(newBlockingLoader(), 1)
	if err := s.Cancel(uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestShutdown_AbortsAndRejects(t *testing.T) {
	l := newBlockingLoader()
	s := newService(l, 2)

	run, err := s.Submit(context.Background(), domain.Trigger{BuildID: "9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, l)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if outcome := waitOutcome(t, s, run.ID); outcome.Kind != domain.OutcomeAborted {
		t.Errorf("expected aborted, got %s", outcome)
	}
	if _, err := s.Submit(context.Background(), domain.Trigger{BuildID: "10"}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestHistory_EvictsOldest(t *testing.T) {
	l := newBlockingLoader()
	close(l.release)
	s := NewService(Config{
		Loader:  l,
		Runner:  pipeline.NewRunner(pipeline.Config{Executor: &executor.Recorder{}}),
		History: 2,
	})

	var ids []uuid.UUID
	for _, build := range []string{"1", "2", "3"} {
		run, err := s.Submit(context.Background(), domain.Trigger{BuildID: build})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, run.ID)
		waitOutcome(t, s, run.ID)
		if err := s.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	if _, ok := s.Get(ids[0]); ok {
		t.Error("oldest run should be evicted")
	}
	if runs := s.List(); len(runs) != 2 || runs[0].ID != ids[2] {
		t.Errorf("unexpected list: %+v", runs)
	}
}

func TestAMQPHandler(t *testing.T) {
	l := newBlockingLoader()
	close(l.release)
	s := newService(l, 1)
	handler := AMQPHandler(s)

	ok := &mq.Delivery{Message: mq.Message{
		ID:        "m-1",
		Type:      mq.MessageTypeTriggerPending,
		Payload:   mq.TriggerPayload{BuildID: "55", Revision: "abc"},
		Timestamp: time.Now(),
	}}
	if err := handler(context.Background(), ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	runs := s.List()
	if len(runs) != 1 || runs[0].BuildID != "55" || runs[0].Source != domain.TriggerSourceSCM || runs[0].Revision != "abc" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	invalid := []*mq.Delivery{
		{Message: mq.Message{Type: mq.MessageTypeRunFinished, Payload: mq.TriggerPayload{BuildID: "1"}}},
		{Message: mq.Message{Type: mq.MessageTypeTriggerPending, Payload: mq.TriggerPayload{}}},
		{Message: mq.Message{Type: mq.MessageTypeTriggerPending, Payload: "not an object"}},
	}
	for i, d := range invalid {
		if err := handler(context.Background(), d); !errors.Is(err, mq.ErrInvalidMessage) {
			t.Errorf("delivery %d: expected ErrInvalidMessage, got %v", i, err)
		}
	}
}
