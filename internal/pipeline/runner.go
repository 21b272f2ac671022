package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/gate"
	"github.com/shaiso/Conveyor/internal/hooks"
	"github.com/shaiso/Conveyor/internal/rollout"
	"github.com/shaiso/Conveyor/internal/secrets"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// RunStore сохраняет runs и записи stages.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	SaveStage(ctx context.Context, rec *domain.StageRecord) error
}

// EventPublisher публикует события жизненного цикла run.
type EventPublisher interface {
	PublishRunStarted(ctx context.Context, run *domain.Run) error
	PublishRunFinished(ctx context.Context, run *domain.Run, outcome domain.Outcome) error
}

// Metrics — метрики выполнения.
type Metrics interface {
	RunStarted(pipeline string)
	RunFinished(pipeline string, outcome domain.Outcome)
	StageFinished(pipeline, stage string, d time.Duration)
	GateWaited(result string, d time.Duration)
	RolloutWatched(result string, polls int)
}

// Config — конфигурация Runner.
type Config struct {
	// Executor запускает команды (default: executor.Process с окружением процесса).
	Executor executor.Executor

	// Secrets разрешает credentials stages (default: Manager без хранилища).
	Secrets *secrets.Manager

	// Gates ждёт решений gate (nil — GateAction завершается ошибкой).
	Gates *gate.Waiter

	// Rollouts наблюдает за rollout (nil — RolloutAction завершается ошибкой).
	Rollouts *rollout.Monitor

	// Always — дополнительный OnAlways hook для каждого run.
	Always hooks.Hook

	// Budget — общий бюджет времени run (0 — без ограничения).
	Budget time.Duration

	// Store, Events, Metrics — необязательные наблюдатели.
	Store   RunStore
	Events  EventPublisher
	Metrics Metrics

	// Logger
	Logger *slog.Logger
}

// Runner выполняет pipelines.
//
// Runner не хранит состояния между выполнениями: одновременные
// выполнения разделяют только конфигурацию.
type Runner struct {
	executor executor.Executor
	secrets  *secrets.Manager
	gates    *gate.Waiter
	rollouts *rollout.Monitor
	always   hooks.Hook
	budget   time.Duration
	store    RunStore
	events   EventPublisher
	metrics  Metrics
	logger   *slog.Logger
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exec := cfg.Executor
	if exec == nil {
		exec = executor.New(executor.Config{InheritEnv: true, Logger: logger})
	}

	mgr := cfg.Secrets
	if mgr == nil {
		mgr = secrets.NewManager(secrets.ManagerConfig{Logger: logger})
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Runner{
		executor: exec,
		secrets:  mgr,
		gates:    cfg.Gates,
		rollouts: cfg.Rollouts,
		always:   cfg.Always,
		budget:   cfg.Budget,
		store:    cfg.Store,
		events:   cfg.Events,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run выполняет p для trigger и блокирует до завершения hooks.
func (r *Runner) Run(ctx context.Context, p *Pipeline, trigger domain.Trigger) *Execution {
	e := NewExecution(p, trigger)
	r.Execute(ctx, e)
	return e
}

// Execute выполняет подготовленное выполнение.
//
// Отмена ctx переводит run в Aborted; hooks вызываются в любом случае.
// Повторный вызов для того же выполнения ничего не делает.
func (r *Runner) Execute(ctx context.Context, e *Execution) {
	if !e.start() {
		return
	}
	defer close(e.done)

	p := e.pipeline
	logger := telemetry.WithRunID(telemetry.WithPipeline(r.logger, p.Name()), e.ID().String())
	ctx = telemetry.WithLogger(ctx, logger)

	if r.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.budget, ErrBudgetExhausted)
		defer cancel()
	}

	// Записи о run сохраняются и после отмены
	bg := context.WithoutCancel(ctx)

	run := e.Snapshot()
	r.persist(logger, "create run", func() error { return r.store.CreateRun(bg, &run) }, r.store != nil)

	run = e.update(func(run *domain.Run) { run.MarkRunning() })
	r.persist(logger, "update run", func() error { return r.store.UpdateRun(bg, &run) }, r.store != nil)
	r.persist(logger, "publish run started", func() error { return r.events.PublishRunStarted(bg, &run) }, r.events != nil)
	r.metrics.RunStarted(p.Name())

	logger.Info("run started", "build_id", run.BuildID, "image_tag", run.ImageTag, "stages", p.Len())

	outcome := r.stages(ctx, e, logger)
	run = e.finish(outcome)
	outcome = e.Outcome()

	report := r.dispatcher(p, logger).Dispatch(WithExecution(ctx, e), outcome)
	e.setReport(report)

	r.persist(logger, "update run", func() error { return r.store.UpdateRun(bg, &run) }, r.store != nil)
	r.persist(logger, "publish run finished", func() error { return r.events.PublishRunFinished(bg, &run, outcome) }, r.events != nil)
	r.metrics.RunFinished(p.Name(), outcome)

	logger.Info("run finished",
		"status", run.Status,
		"reason", outcome.Reason,
		"stage", outcome.Stage,
		"duration", run.Duration(),
		"hook_error", report.Err(),
	)
}

// stages проходит stages по порядку до первой ошибки.
func (r *Runner) stages(ctx context.Context, e *Execution, logger *slog.Logger) domain.Outcome {
	p := e.pipeline

	stack := &secrets.Stack{}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("failed to release secret scopes", "error", err)
		}
	}()

	for i := 0; i < p.Len(); i++ {
		st := p.Stage(i)

		if err := abortError(ctx); err != nil {
			return r.outcome(ctx, st.Name, err)
		}

		stageLogger := telemetry.WithStage(logger, st.Name, i)
		err := r.stage(ctx, e, i, st, stack, stageLogger)
		if err != nil {
			return r.outcome(ctx, st.Name, err)
		}
	}

	return domain.Success()
}

// stage выполняет один stage и сохраняет запись о нём.
func (r *Runner) stage(ctx context.Context, e *Execution, index int, st Stage, stack *secrets.Stack, logger *slog.Logger) (err error) {
	p := e.pipeline
	bg := context.WithoutCancel(ctx)
	start := time.Now()

	run := e.update(func(run *domain.Run) { run.EnterStage(index, st.Name) })
	r.persist(logger, "update run", func() error { return r.store.UpdateRun(bg, &run) }, r.store != nil)

	rec := domain.StageRecord{
		RunID:     run.ID,
		Index:     index,
		Name:      st.Name,
		Status:    domain.StageStatusRunning,
		StartedAt: start,
	}
	e.beginStage(rec)
	r.persist(logger, "save stage", func() error { return r.store.SaveStage(bg, &rec) }, r.store != nil)
	e.transcript.Append(fmt.Sprintf("==> %s", st.Name))

	logger.Info("stage started", "actions", len(st.Actions), "credentials", len(st.Credentials))

	defer func() {
		d := time.Since(start)
		rec := e.endStage(func(rec *domain.StageRecord) {
			now := time.Now()
			rec.FinishedAt = &now
			switch {
			case err == nil:
				rec.Status = domain.StageStatusSucceeded
			case ctx.Err() != nil || errors.Is(err, ErrExternalAbort):
				rec.Status = domain.StageStatusAborted
				rec.Error = err.Error()
			default:
				rec.Status = domain.StageStatusFailed
				rec.Error = err.Error()
			}
		})
		r.persist(logger, "save stage", func() error { return r.store.SaveStage(bg, &rec) }, r.store != nil)
		r.metrics.StageFinished(p.Name(), st.Name, d)

		if err != nil {
			logger.Warn("stage failed", "status", rec.Status, "duration", d, "error", err)
		} else {
			logger.Info("stage finished", "duration", d)
		}
	}()

	scope, err := r.secrets.Enter(ctx, st.Credentials...)
	if err != nil {
		return err
	}
	stack.Push(scope)
	defer func() {
		if perr := stack.Pop(); perr != nil {
			logger.Error("failed to release secret scope", "error", perr)
		}
	}()

	rt := &Runtime{
		runner: r,
		exec:   e,
		stage:  st.Name,
		index:  index,
		stack:  stack,
		logger: logger,
	}

	// env stage рендерится против базы и переменных запуска
	stageEnv, err := RenderMap(st.Env, e.templateData(p.env.Overlay(e.buildVars()), st.Name))
	if err != nil {
		return fmt.Errorf("stage env: %w", err)
	}
	rt.stageEnv = stageEnv

	for _, a := range st.Actions {
		if err := abortError(ctx); err != nil {
			return err
		}

		logger.Debug("action started", "action", a.Name())
		if err := a.Run(ctx, rt); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}

		if err := abortError(ctx); err != nil {
			return err
		}
	}

	return nil
}

// outcome строит Outcome для остановленного stage.
func (r *Runner) outcome(ctx context.Context, stage string, err error) domain.Outcome {
	if ctx.Err() != nil || errors.Is(err, ErrExternalAbort) {
		detail := err.Error()
		if !errors.Is(err, ErrExternalAbort) {
			detail = fmt.Sprintf("%v: %s", abortError(ctx), detail)
		}
		return domain.Aborted(stage, ReasonExternalAbort, detail)
	}
	return domain.Failure(stage, Reason(err), err.Error())
}

// dispatcher возвращает hooks pipeline вместе с hooks Runner.
func (r *Runner) dispatcher(p *Pipeline, logger *slog.Logger) *hooks.Dispatcher {
	var d hooks.Dispatcher
	if p.hooks != nil {
		d = *p.hooks
	}
	if r.always != nil {
		d.OnAlways = hooks.Sequence(d.OnAlways, r.always)
	}
	if d.Logger == nil {
		d.Logger = logger
	}
	return &d
}

// persist вызывает необязательного наблюдателя. Ошибки только логируются:
// недоступная БД или брокер не меняют результат run.
func (r *Runner) persist(logger *slog.Logger, op string, fn func() error, enabled bool) {
	if !enabled {
		return
	}
	if err := fn(); err != nil {
		logger.Error("failed to "+op, "error", err)
	}
}

type nopMetrics struct{}

func (nopMetrics) RunStarted(string)                           {}
func (nopMetrics) RunFinished(string, domain.Outcome)          {}
func (nopMetrics) StageFinished(string, string, time.Duration) {}
func (nopMetrics) GateWaited(string, time.Duration)            {}
func (nopMetrics) RolloutWatched(string, int)                  {}
