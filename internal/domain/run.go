package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись об одном выполнении pipeline.
//
// Run создаётся на каждый Trigger: один запуск — один экземпляр Pipeline.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя pipeline.
	Pipeline string `json:"pipeline"`

	// BuildID — идентификатор сборки из Trigger.
	BuildID string `json:"build_id"`

	// ImageTag — тег образа, "build-<BuildID>".
	ImageTag string `json:"image_tag"`

	// Source — источник запуска.
	Source TriggerSource `json:"source"`

	// Revision — ревизия исходников, если известна.
	Revision string `json:"revision,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StageIndex — индекс текущего (или последнего выполненного) stage.
	// -1, пока run не начался.
	StageIndex int `json:"stage_index"`

	// Stage — имя текущего stage.
	Stage string `json:"stage,omitempty"`

	// Reason — короткая причина для FAILED/ABORTED.
	Reason string `json:"reason,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(pipeline string, trigger Trigger) *Run {
	return &Run{
		ID:         uuid.New(),
		Pipeline:   pipeline,
		BuildID:    trigger.BuildID,
		ImageTag:   trigger.ImageTag(),
		Source:     trigger.Source,
		Revision:   trigger.Revision,
		Status:     RunStatusPending,
		StageIndex: -1,
		CreatedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// EnterStage фиксирует переход Running(i).
func (r *Run) EnterStage(index int, name string) {
	r.StageIndex = index
	r.Stage = name
}

// Finish переводит run в финальный статус согласно Outcome.
func (r *Run) Finish(outcome Outcome) {
	now := time.Now()
	r.Status = outcome.Status()
	r.Reason = outcome.Reason
	r.FinishedAt = &now
}

// StageRecord — запись о выполнении одного stage.
type StageRecord struct {
	RunID      uuid.UUID   `json:"run_id"`
	Index      int         `json:"index"`
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
