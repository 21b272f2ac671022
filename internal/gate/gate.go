// Package gate ожидает внешнее решение pass/fail с ограниченным таймаутом.
//
// Решение выносит отдельная система по своему расписанию (например,
// статический анализ), поэтому ожидание всегда ограничено сверху: иначе
// неответившая система подвесит весь pipeline. Перед первым опросом
// выдерживается пауза (GraceDelay), чтобы не спрашивать систему раньше,
// чем она зарегистрировала запрос.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default configuration values.
const (
	defaultGraceDelay   = 10 * time.Second
	defaultPollInterval = 5 * time.Second
)

// State — состояние решения во внешней системе.
type State string

const (
	StatePending  State = "pending"
	StatePassed   State = "passed"
	StateRejected State = "rejected"
)

// Decision — ответ внешней системы на один опрос.
type Decision struct {
	State  State
	Reason string
}

// Source — внешняя система, выносящая решение по gate id.
type Source interface {
	Poll(ctx context.Context, gateID string) (Decision, error)
}

// SourceFunc адаптирует функцию к Source.
type SourceFunc func(ctx context.Context, gateID string) (Decision, error)

// Poll реализует Source.
func (f SourceFunc) Poll(ctx context.Context, gateID string) (Decision, error) {
	return f(ctx, gateID)
}

// Status — итог ожидания.
type Status string

const (
	StatusPassed   Status = "Passed"
	StatusRejected Status = "Rejected"
	StatusTimedOut Status = "TimedOut"
)

// Result — результат Await.
type Result struct {
	GateID string
	Status Status

	// Reason — причина отказа или последняя ошибка источника при таймауте.
	Reason string

	// Polls — количество выполненных опросов.
	Polls int

	// Waited — общее время ожидания.
	Waited time.Duration
}

// Err возвращает ошибку для Rejected и TimedOut, nil для Passed.
//
// Обе ошибки одинаково останавливают pipeline; различие сохраняется
// только для диагностики.
func (r Result) Err() error {
	switch r.Status {
	case StatusPassed:
		return nil
	case StatusRejected:
		if r.Reason == "" {
			return fmt.Errorf("%w: %s", ErrGateRejected, r.GateID)
		}
		return fmt.Errorf("%w: %s: %s", ErrGateRejected, r.GateID, r.Reason)
	default:
		if r.Reason == "" {
			return fmt.Errorf("%w: %s after %s", ErrGateTimedOut, r.GateID, r.Waited.Round(time.Millisecond))
		}
		return fmt.Errorf("%w: %s after %s (last error: %s)", ErrGateTimedOut, r.GateID, r.Waited.Round(time.Millisecond), r.Reason)
	}
}

// Config — конфигурация Waiter.
type Config struct {
	// Source — система решений.
	Source Source

	// GraceDelay — пауза перед первым опросом (default: 10s).
	// Отрицательное значение отключает паузу.
	GraceDelay time.Duration

	// PollInterval — интервал между опросами (default: 5s).
	PollInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// Waiter опрашивает Source до решения или таймаута.
type Waiter struct {
	source       Source
	graceDelay   time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewWaiter создаёт новый Waiter.
func NewWaiter(cfg Config) *Waiter {
	graceDelay := cfg.GraceDelay
	if graceDelay == 0 {
		graceDelay = defaultGraceDelay
	}
	if graceDelay < 0 {
		graceDelay = 0
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Waiter{
		source:       cfg.Source,
		graceDelay:   graceDelay,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Await ждёт решения по gateID не дольше timeout (включая GraceDelay).
//
// Решение, пришедшее после дедлайна, не учитывается: результат TimedOut.
// Ошибки источника не прерывают ожидание, опрос продолжается до дедлайна.
// Отмена ctx возвращает ошибку контекста.
func (w *Waiter) Await(ctx context.Context, gateID string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		return Result{}, ErrInvalidTimeout
	}

	start := time.Now()
	deadline := start.Add(timeout)
	result := Result{GateID: gateID}

	expired := time.NewTimer(timeout)
	defer expired.Stop()

	w.logger.Info("waiting for gate",
		"gate_id", gateID,
		"timeout", timeout,
		"grace_delay", w.graceDelay,
	)

	if w.graceDelay > 0 {
		timedOut, err := w.sleep(ctx, expired, w.graceDelay)
		if err != nil {
			return Result{}, err
		}
		if timedOut {
			return w.timedOut(result, start), nil
		}
	}

	for {
		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		decision, err := w.source.Poll(pollCtx, gateID)
		cancel()
		result.Polls++

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}

		// Поздний ответ не учитывается
		if !time.Now().Before(deadline) {
			return w.timedOut(result, start), nil
		}

		if err != nil {
			result.Reason = err.Error()
			w.logger.Warn("gate poll failed", "gate_id", gateID, "poll", result.Polls, "error", err)
		} else {
			switch decision.State {
			case StatePassed:
				result.Status = StatusPassed
				result.Reason = decision.Reason
				result.Waited = time.Since(start)
				w.logger.Info("gate passed", "gate_id", gateID, "polls", result.Polls, "waited", result.Waited)
				return result, nil

			case StateRejected:
				result.Status = StatusRejected
				result.Reason = decision.Reason
				result.Waited = time.Since(start)
				w.logger.Warn("gate rejected", "gate_id", gateID, "reason", decision.Reason)
				return result, nil

			default:
				result.Reason = ""
				w.logger.Debug("gate pending", "gate_id", gateID, "poll", result.Polls)
			}
		}

		interval := min(w.pollInterval, time.Until(deadline))
		timedOut, sleepErr := w.sleep(ctx, expired, interval)
		if sleepErr != nil {
			return Result{}, sleepErr
		}
		if timedOut {
			return w.timedOut(result, start), nil
		}
	}
}

// sleep ждёт d; возвращает timedOut=true, если истёк общий таймаут.
func (w *Waiter) sleep(ctx context.Context, expired *time.Timer, d time.Duration) (bool, error) {
	if d <= 0 {
		return true, nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-expired.C:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (w *Waiter) timedOut(result Result, start time.Time) Result {
	result.Status = StatusTimedOut
	result.Waited = time.Since(start)
	w.logger.Warn("gate timed out", "gate_id", result.GateID, "polls", result.Polls, "waited", result.Waited)
	return result
}
