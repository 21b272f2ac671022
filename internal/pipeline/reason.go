package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/gate"
	"github.com/shaiso/Conveyor/internal/rollout"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Короткие причины в Outcome.Reason.
const (
	ReasonGateRejected           = "GateRejected"
	ReasonGateTimedOut           = "GateTimedOut"
	ReasonRolloutFailed          = "RolloutFailed"
	ReasonCredentialNotFound     = "CredentialNotFound"
	ReasonCredentialTypeMismatch = "CredentialTypeMismatch"
	ReasonExternalAbort          = "ExternalAbort"
	ReasonStageError             = "StageError"
)

// Reason переводит ошибку stage в короткую причину.
func Reason(err error) string {
	var cmdErr *executor.CommandFailedError
	switch {
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("CommandFailed(%d)", cmdErr.Status)
	case errors.Is(err, gate.ErrGateRejected):
		return ReasonGateRejected
	case errors.Is(err, gate.ErrGateTimedOut):
		return ReasonGateTimedOut
	case errors.Is(err, rollout.ErrRolloutFailed):
		return ReasonRolloutFailed
	case errors.Is(err, secrets.ErrCredentialNotFound):
		return ReasonCredentialNotFound
	case errors.Is(err, secrets.ErrCredentialTypeMismatch):
		return ReasonCredentialTypeMismatch
	case errors.Is(err, ErrExternalAbort),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ReasonExternalAbort
	default:
		return ReasonStageError
	}
}

// abortError возвращает ErrExternalAbort с причиной, если ctx отменён.
func abortError(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrExternalAbort, context.Cause(ctx))
}
