// Package hooks вызывает обработчики финального результата run.
//
// Dispatcher получает Outcome ровно один раз, когда Runner остановился,
// и вызывает ровно один терминальный hook (OnSuccess, OnFailure или
// OnAborted), затем OnAlways. Ошибка или panic терминального hook
// фиксируется в Report и не отменяет OnAlways. Outcome hooks не меняют.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Default configuration values.
const defaultCleanupTimeout = 5 * time.Minute

// ErrHookPanic — hook завершился panic.
var ErrHookPanic = errors.New("hook panicked")

// Hook — обработчик результата run.
type Hook func(ctx context.Context, outcome domain.Outcome) error

// Sequence объединяет hooks в один: все вызываются по порядку,
// ошибки собираются через errors.Join.
func Sequence(hooks ...Hook) Hook {
	return func(ctx context.Context, outcome domain.Outcome) error {
		var errs []error
		for _, h := range hooks {
			if h == nil {
				continue
			}
			if err := call(ctx, h, outcome); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Report — что произошло при вызове hooks.
type Report struct {
	// Outcome — результат, переданный hooks.
	Outcome domain.Outcome

	// TerminalRan — был ли вызван терминальный hook.
	TerminalRan bool

	// Terminal — ошибка терминального hook.
	Terminal error

	// AlwaysRan — был ли вызван OnAlways.
	AlwaysRan bool

	// Always — ошибка OnAlways.
	Always error
}

// Err объединяет ошибки hooks.
func (r Report) Err() error {
	return errors.Join(r.Terminal, r.Always)
}

// Dispatcher — набор hooks по виду результата.
type Dispatcher struct {
	OnSuccess Hook
	OnFailure Hook
	OnAborted Hook
	OnAlways  Hook

	// CleanupTimeout ограничивает время работы терминального hook и,
	// отдельно, OnAlways (default: 5m).
	CleanupTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// Dispatch вызывает hooks для outcome.
//
// Hooks работают на контексте, отвязанном от отмены ctx: отменённый run
// всё равно проходит свою очистку. OnAlways получает собственный
// CleanupTimeout, зависший терминальный hook его не расходует.
func (d *Dispatcher) Dispatch(ctx context.Context, outcome domain.Outcome) Report {
	report := Report{Outcome: outcome}
	if d == nil {
		return report
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := d.CleanupTimeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}

	base := context.WithoutCancel(ctx)

	if terminal := d.terminal(outcome.Kind); terminal != nil {
		report.TerminalRan = true
		report.Terminal = callWithTimeout(base, timeout, terminal, outcome)
		if report.Terminal != nil {
			logger.Error("outcome hook failed", "outcome", outcome.Kind, "error", report.Terminal)
		}
	}

	if d.OnAlways != nil {
		report.AlwaysRan = true
		report.Always = callWithTimeout(base, timeout, d.OnAlways, outcome)
		if report.Always != nil {
			logger.Error("always hook failed", "outcome", outcome.Kind, "error", report.Always)
		}
	}

	return report
}

func (d *Dispatcher) terminal(kind domain.OutcomeKind) Hook {
	switch kind {
	case domain.OutcomeSuccess:
		return d.OnSuccess
	case domain.OutcomeFailure:
		return d.OnFailure
	case domain.OutcomeAborted:
		return d.OnAborted
	default:
		return nil
	}
}

func callWithTimeout(ctx context.Context, timeout time.Duration, h Hook, outcome domain.Outcome) error {
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(hookCtx, h, outcome)
}

// call вызывает hook, превращая panic в ошибку.
func call(ctx context.Context, h Hook, outcome domain.Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, r)
		}
	}()
	return h(ctx, outcome)
}
