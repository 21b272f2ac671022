package gate

import "errors"

// Ошибки gate waiter'а.
var (
	// ErrGateRejected — внешняя система вынесла отрицательное решение.
	ErrGateRejected = errors.New("gate rejected")

	// ErrGateTimedOut — решение не получено за отведённое время.
	ErrGateTimedOut = errors.New("gate timed out")

	// ErrInvalidTimeout — таймаут не задан или не положителен.
	ErrInvalidTimeout = errors.New("gate timeout must be positive")

	// ErrSourceUnavailable — сервис решений ответил ошибкой.
	ErrSourceUnavailable = errors.New("gate source unavailable")

	// ErrReportInvalid — report-task.txt не содержит ceTaskId.
	ErrReportInvalid = errors.New("invalid analysis report")
)
