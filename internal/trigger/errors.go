package trigger

import "errors"

// Ошибки сервиса triggers.
var (
	// ErrInvalidTrigger — trigger без build id.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrTooManyRuns — достигнут предел одновременных runs.
	ErrTooManyRuns = errors.New("too many concurrent runs")

	// ErrRunNotFound — run с таким id неизвестен сервису.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished — run уже завершён.
	ErrRunFinished = errors.New("run already finished")

	// ErrShuttingDown — сервис останавливается и не принимает triggers.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrCancelled — причина отмены по запросу оператора.
	ErrCancelled = errors.New("cancelled by request")
)
