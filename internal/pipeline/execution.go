package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/hooks"
)

// Execution — одно выполнение pipeline.
//
// Все методы потокобезопасны: trigger service читает состояние, пока
// Runner его меняет. Outcome, Hooks и Stages окончательны после Done.
type Execution struct {
	pipeline   *Pipeline
	transcript *executor.Output
	done       chan struct{}

	mu      sync.Mutex
	run     domain.Run
	outcome domain.Outcome
	report  hooks.Report
	stages  []domain.StageRecord
	started bool
}

// NewExecution создаёт выполнение p для trigger в статусе PENDING.
func NewExecution(p *Pipeline, trigger domain.Trigger) *Execution {
	return &Execution{
		pipeline:   p,
		transcript: executor.NewOutput(),
		done:       make(chan struct{}),
		run:        *domain.NewRun(p.Name(), trigger),
	}
}

// ID возвращает идентификатор run.
func (e *Execution) ID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.ID
}

// Pipeline возвращает выполняемый pipeline.
func (e *Execution) Pipeline() *Pipeline {
	return e.pipeline
}

// Snapshot возвращает копию текущего состояния run.
func (e *Execution) Snapshot() domain.Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Outcome возвращает финальный результат.
func (e *Execution) Outcome() domain.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Hooks возвращает отчёт о вызове hooks.
func (e *Execution) Hooks() hooks.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report
}

// Stages возвращает записи о выполненных stages.
func (e *Execution) Stages() []domain.StageRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.StageRecord, len(e.stages))
	copy(out, e.stages)
	return out
}

// Transcript возвращает вывод всех команд выполнения (секреты замаскированы).
func (e *Execution) Transcript() *executor.Output {
	return e.transcript
}

// Done закрывается, когда выполнение завершено и hooks отработали.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait блокирует до завершения выполнения или отмены ctx.
func (e *Execution) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case <-e.done:
		return e.Outcome(), nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// start помечает выполнение начатым. false — уже запускалось.
func (e *Execution) start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return false
	}
	e.started = true
	return true
}

// update меняет run под блокировкой и возвращает снимок.
func (e *Execution) update(fn func(*domain.Run)) domain.Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.run)
	return e.run
}

// beginStage добавляет запись о начатом stage.
func (e *Execution) beginStage(rec domain.StageRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, rec)
}

// endStage обновляет последнюю запись stage.
func (e *Execution) endStage(fn func(*domain.StageRecord)) domain.StageRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &e.stages[len(e.stages)-1]
	fn(rec)
	return *rec
}

// finish фиксирует Outcome. Повторный вызов игнорируется.
func (e *Execution) finish(outcome domain.Outcome) domain.Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run.Status.IsTerminal() {
		return e.run
	}
	e.outcome = outcome
	e.run.Finish(outcome)
	return e.run
}

func (e *Execution) setReport(report hooks.Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = report
}

// buildVars возвращает переменные запуска.
func (e *Execution) buildVars() map[string]string {
	run := e.Snapshot()
	return map[string]string{
		"BUILD_ID":  run.BuildID,
		"IMAGE_TAG": run.ImageTag,
		"RUN_ID":    run.ID.String(),
	}
}

// templateData собирает данные шаблонов для env.
func (e *Execution) templateData(env map[string]string, stage string) *TemplateData {
	run := e.Snapshot()
	return &TemplateData{
		Env: env,
		Build: BuildInfo{
			ID:       run.BuildID,
			ImageTag: run.ImageTag,
			Revision: run.Revision,
			Source:   string(run.Source),
		},
		Run: RunInfo{
			ID:       run.ID.String(),
			Pipeline: run.Pipeline,
		},
		Stage: stage,
	}
}

// record дописывает команду и её вывод в транскрипт.
func (e *Execution) record(res *executor.Result) {
	if res == nil {
		return
	}
	e.transcript.Append("$ " + res.Command)
	if res.Output != nil {
		for _, line := range res.Output.Lines() {
			e.transcript.Append(line)
		}
	}
}

type ctxKey struct{}

// WithExecution добавляет выполнение в контекст (для hooks).
func WithExecution(ctx context.Context, e *Execution) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// ExecutionFromContext извлекает выполнение из контекста (nil, если нет).
func ExecutionFromContext(ctx context.Context) *Execution {
	e, _ := ctx.Value(ctxKey{}).(*Execution)
	return e
}
