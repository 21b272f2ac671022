// Package rollout наблюдает за сходимостью deployment к новому состоянию.
//
// В отличие от gate, у Watch нет таймаута вызывающей стороны: система
// развёртывания сама владеет своим дедлайном и сообщает финальное
// состояние. Monitor опрашивает с постоянным интервалом, пока статус
// "progressing", и сразу возвращается на "stable" или "failed".
package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default configuration values.
const defaultInterval = 5 * time.Second

// Ошибки rollout monitor'а.
var (
	// ErrRolloutFailed — система развёртывания сообщила о провале.
	ErrRolloutFailed = errors.New("rollout failed")

	// ErrStatusUnavailable — статус не удалось получить.
	ErrStatusUnavailable = errors.New("rollout status unavailable")
)

// State — состояние rollout во внешней системе.
type State string

const (
	StateProgressing State = "progressing"
	StateStable      State = "stable"
	StateFailed      State = "failed"
)

// Status — ответ на один опрос.
type Status struct {
	State  State
	Reason string
}

// Source — внешняя система развёртывания.
type Source interface {
	Status(ctx context.Context, resourceID string) (Status, error)
}

// SourceFunc адаптирует функцию к Source.
type SourceFunc func(ctx context.Context, resourceID string) (Status, error)

// Status реализует Source.
func (f SourceFunc) Status(ctx context.Context, resourceID string) (Status, error) {
	return f(ctx, resourceID)
}

// Result — итог наблюдения.
type Result struct {
	ResourceID string
	Stable     bool
	Reason     string
	Polls      int
	Waited     time.Duration
}

// Err возвращает ErrRolloutFailed для неуспешного rollout.
func (r Result) Err() error {
	if r.Stable {
		return nil
	}
	if r.Reason == "" {
		return fmt.Errorf("%w: %s", ErrRolloutFailed, r.ResourceID)
	}
	return fmt.Errorf("%w: %s: %s", ErrRolloutFailed, r.ResourceID, r.Reason)
}

// Config — конфигурация Monitor.
type Config struct {
	// Source — система развёртывания.
	Source Source

	// Interval — интервал между опросами (default: 5s).
	Interval time.Duration

	// Logger
	Logger *slog.Logger
}

// Monitor опрашивает Source до финального состояния.
type Monitor struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor создаёт новый Monitor.
func NewMonitor(cfg Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		source:   cfg.Source,
		interval: interval,
		logger:   logger,
	}
}

// Watch опрашивает состояние resourceID, пока оно не станет финальным.
//
// Первый опрос выполняется сразу. "failed" возвращается немедленно,
// без дальнейших опросов. Ошибка источника прерывает наблюдение.
func (m *Monitor) Watch(ctx context.Context, resourceID string) (Result, error) {
	start := time.Now()
	result := Result{ResourceID: resourceID}

	m.logger.Info("watching rollout", "resource", resourceID, "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		status, err := m.source.Status(ctx, resourceID)
		result.Polls++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			return result, fmt.Errorf("%w: %s: %v", ErrStatusUnavailable, resourceID, err)
		}

		switch status.State {
		case StateStable:
			result.Stable = true
			result.Waited = time.Since(start)
			m.logger.Info("rollout stable", "resource", resourceID, "polls", result.Polls, "waited", result.Waited)
			return result, nil

		case StateFailed:
			result.Reason = status.Reason
			result.Waited = time.Since(start)
			m.logger.Warn("rollout failed", "resource", resourceID, "polls", result.Polls, "reason", status.Reason)
			return result, nil

		case StateProgressing:
			m.logger.Debug("rollout progressing", "resource", resourceID, "poll", result.Polls, "reason", status.Reason)

		default:
			return result, fmt.Errorf("%w: %s: unknown state %q", ErrStatusUnavailable, resourceID, status.State)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
