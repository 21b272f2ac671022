package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
)

// Default configuration values.
const (
	defaultMaxConcurrent = 4
	defaultHistory       = 100
)

// Loader строит Pipeline для очередного trigger.
type Loader interface {
	Load() (*pipeline.Pipeline, error)
}

// LoaderFunc адаптирует функцию к Loader.
type LoaderFunc func() (*pipeline.Pipeline, error)

// Load реализует Loader.
func (f LoaderFunc) Load() (*pipeline.Pipeline, error) { return f() }

// Config — конфигурация Service.
type Config struct {
	Loader Loader
	Runner *pipeline.Runner

	// MaxConcurrent — предел одновременных runs (default: 4).
	MaxConcurrent int

	// History — сколько завершённых runs хранить для Get (default: 100).
	History int

	Logger *slog.Logger
}

type entry struct {
	exec   *pipeline.Execution
	cancel context.CancelCauseFunc
}

// Service выполняет pipeline по triggers.
type Service struct {
	loader  Loader
	runner  *pipeline.Runner
	sem     chan struct{}
	history int
	logger  *slog.Logger

	mu       sync.Mutex
	runs     map[uuid.UUID]*entry
	finished []uuid.UUID
	closed   bool
	wg       sync.WaitGroup
}

// NewService создаёт Service.
func NewService(cfg Config) *Service {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	history := cfg.History
	if history <= 0 {
		history = defaultHistory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		loader:  cfg.Loader,
		runner:  cfg.Runner,
		sem:     make(chan struct{}, maxConcurrent),
		history: history,
		logger:  logger,
		runs:    make(map[uuid.UUID]*entry),
	}
}

// Submit запускает pipeline для trigger и сразу возвращает run в PENDING.
//
// Выполнение не привязано к отмене ctx: остановить run можно только
// через Cancel или Shutdown.
func (s *Service) Submit(ctx context.Context, trigger domain.Trigger) (domain.Run, error) {
	trigger.BuildID = strings.TrimSpace(trigger.BuildID)
	if trigger.BuildID == "" {
		return domain.Run{}, fmt.Errorf("%w: build id is required", ErrInvalidTrigger)
	}
	if trigger.Source == "" {
		trigger.Source = domain.TriggerSourceManual
	}
	if trigger.RequestedAt.IsZero() {
		trigger.RequestedAt = time.Now()
	}

	select {
	case s.sem <- struct{}{}:
	default:
		return domain.Run{}, ErrTooManyRuns
	}

	p, err := s.loader.Load()
	if err != nil {
		<-s.sem
		return domain.Run{}, fmt.Errorf("load pipeline: %w", err)
	}

	exec := pipeline.NewExecution(p, trigger)
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel(ErrShuttingDown)
		<-s.sem
		return domain.Run{}, ErrShuttingDown
	}
	s.runs[exec.ID()] = &entry{exec: exec, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	run := exec.Snapshot()
	s.logger.Info("run submitted",
		"run_id", run.ID,
		"pipeline", run.Pipeline,
		"build_id", run.BuildID,
		"source", run.Source,
	)

	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		s.runner.Execute(runCtx, exec)
		cancel(nil)
		s.retire(exec.ID())
	}()

	return run, nil
}

// Cancel отменяет выполняющийся run. Run завершится как Aborted.
func (s *Service) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.runs[id]
	s.mu.Unlock()

	if !ok {
		return ErrRunNotFound
	}
	if isDone(e.exec) {
		return ErrRunFinished
	}

	s.logger.Info("run cancel requested", "run_id", id)
	e.cancel(ErrCancelled)
	return nil
}

// Get возвращает выполнение по id.
func (s *Service) Get(id uuid.UUID) (*pipeline.Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return e.exec, true
}

// List возвращает снимки известных runs, новые первыми.
func (s *Service) List() []domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]domain.Run, 0, len(s.runs))
	for _, e := range s.runs {
		runs = append(runs, e.exec.Snapshot())
	}
	sortRuns(runs)
	return runs
}

// Active возвращает количество выполняющихся runs.
func (s *Service) Active() int {
	return len(s.sem)
}

// Wait блокирует до завершения всех запущенных runs или отмены ctx.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown перестаёт принимать triggers, отменяет выполняющиеся runs
// и ждёт их hooks.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.runs {
		e.cancel(ErrShuttingDown)
	}
	s.mu.Unlock()

	return s.Wait(ctx)
}

// retire переносит run в историю и вытесняет самые старые.
func (s *Service) retire(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = append(s.finished, id)
	for len(s.finished) > s.history {
		delete(s.runs, s.finished[0])
		s.finished = s.finished[1:]
	}
}

func isDone(exec *pipeline.Execution) bool {
	select {
	case <-exec.Done():
		return true
	default:
		return false
	}
}

// sortRuns сортирует runs по времени создания, новые первыми.
func sortRuns(runs []domain.Run) {
	slices.SortFunc(runs, func(a, b domain.Run) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
