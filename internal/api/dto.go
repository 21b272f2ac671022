package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/hooks"
)

// Trigger DTOs

// CreateTriggerRequest — запрос на запуск pipeline (ручной или SCM webhook).
type CreateTriggerRequest struct {
	BuildID  string `json:"build_id"`
	Source   string `json:"source,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// Trigger конвертирует запрос в domain.Trigger.
func (r CreateTriggerRequest) Trigger(now time.Time) domain.Trigger {
	source := domain.TriggerSource(r.Source)
	if source == "" {
		source = domain.TriggerSourceManual
	}
	return domain.Trigger{
		BuildID:     r.BuildID,
		Source:      source,
		Revision:    r.Revision,
		RequestedAt: now,
	}
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID       `json:"id"`
	Pipeline   string          `json:"pipeline"`
	BuildID    string          `json:"build_id"`
	ImageTag   string          `json:"image_tag"`
	Source     string          `json:"source"`
	Revision   string          `json:"revision,omitempty"`
	Status     string          `json:"status"`
	Stage      string          `json:"stage,omitempty"`
	StageIndex int             `json:"stage_index"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Outcome    *OutcomeDTO     `json:"outcome,omitempty"`
	Stages     []StageResponse `json:"stages,omitempty"`
	Hooks      *HooksResponse  `json:"hooks,omitempty"`
}

// OutcomeDTO — финальный результат run.
type OutcomeDTO struct {
	Kind     string `json:"kind"`
	Reason   string `json:"reason,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Detail   string `json:"detail,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// StageResponse — запись о stage.
type StageResponse struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// HooksResponse — результат вызова hooks.
type HooksResponse struct {
	TerminalRan bool   `json:"terminal_ran"`
	Terminal    string `json:"terminal_error,omitempty"`
	AlwaysRan   bool   `json:"always_ran"`
	Always      string `json:"always_error,omitempty"`
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Pipeline:   r.Pipeline,
		BuildID:    r.BuildID,
		ImageTag:   r.ImageTag,
		Source:     string(r.Source),
		Revision:   r.Revision,
		Status:     string(r.Status),
		Stage:      r.Stage,
		StageIndex: r.StageIndex,
		Reason:     r.Reason,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// OutcomeFromDomain конвертирует domain.Outcome в OutcomeDTO.
func OutcomeFromDomain(o domain.Outcome) *OutcomeDTO {
	return &OutcomeDTO{
		Kind:     string(o.Kind),
		Reason:   o.Reason,
		Stage:    o.Stage,
		Detail:   o.Detail,
		ExitCode: o.ExitCode(),
	}
}

// StagesFromDomain конвертирует записи stages.
func StagesFromDomain(recs []domain.StageRecord) []StageResponse {
	out := make([]StageResponse, len(recs))
	for i, rec := range recs {
		out[i] = StageResponse{
			Index:      rec.Index,
			Name:       rec.Name,
			Status:     string(rec.Status),
			Error:      rec.Error,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		}
	}
	return out
}

// HooksFromReport конвертирует отчёт hooks.
func HooksFromReport(r hooks.Report) *HooksResponse {
	return &HooksResponse{
		TerminalRan: r.TerminalRan,
		Terminal:    errString(r.Terminal),
		AlwaysRan:   r.AlwaysRan,
		Always:      errString(r.Always),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
