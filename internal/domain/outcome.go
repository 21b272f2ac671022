package domain

import "fmt"

// OutcomeKind — вид финального результата run.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
	OutcomeAborted OutcomeKind = "aborted"
)

// Outcome — единственный финальный результат одного выполнения pipeline.
//
// Фиксируется один раз: первым stage/action, который не завершился
// нормально, либо как Success после последнего stage.
type Outcome struct {
	// Kind — success, failure или aborted.
	Kind OutcomeKind `json:"kind"`

	// Reason — короткая причина: "CommandFailed(1)", "GateTimedOut", ...
	// Пустая для Success.
	Reason string `json:"reason,omitempty"`

	// Stage — имя stage, на котором run остановился.
	Stage string `json:"stage,omitempty"`

	// Detail — полный текст ошибки для диагностики.
	Detail string `json:"detail,omitempty"`
}

// Success создаёт успешный результат.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Failure создаёт результат с ошибкой.
func Failure(stage, reason, detail string) Outcome {
	return Outcome{Kind: OutcomeFailure, Stage: stage, Reason: reason, Detail: detail}
}

// Aborted создаёт результат внешней отмены.
func Aborted(stage, reason, detail string) Outcome {
	return Outcome{Kind: OutcomeAborted, Stage: stage, Reason: reason, Detail: detail}
}

// Status возвращает соответствующий финальный RunStatus.
func (o Outcome) Status() RunStatus {
	switch o.Kind {
	case OutcomeSuccess:
		return RunStatusSucceeded
	case OutcomeAborted:
		return RunStatusAborted
	default:
		return RunStatusFailed
	}
}

// ExitCode возвращает код завершения процесса: 0 — успех, 1 — ошибка, 2 — отмена.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeSuccess:
		return 0
	case OutcomeAborted:
		return 2
	default:
		return 1
	}
}

// String возвращает человекочитаемое описание результата.
func (o Outcome) String() string {
	if o.Kind == OutcomeSuccess {
		return string(o.Kind)
	}
	if o.Stage == "" {
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	}
	return fmt.Sprintf("%s at stage %q: %s", o.Kind, o.Stage, o.Reason)
}
