package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Default configuration values.
const (
	defaultTickInterval = time.Second
)

// ErrNoSubmitter — Scheduler создан без Submitter.
var ErrNoSubmitter = errors.New("scheduler: submitter is required")

// Submitter принимает triggers на выполнение.
type Submitter interface {
	Submit(ctx context.Context, trigger domain.Trigger) (domain.Run, error)
}

// Leader решает, какой из процессов выполняет расписание.
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedules — cron выражения.
	Schedules []string

	// Submitter получает triggers.
	Submitter Submitter

	// Leader — выбор лидера между процессами (nil — этот процесс всегда лидер).
	Leader Leader

	// Location — timezone выражений (default: UTC).
	Location *time.Location

	// TickInterval — период проверки в Run (default: 1s).
	TickInterval time.Duration

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

type entry struct {
	expr string
	next time.Time
}

// Scheduler — планировщик, отправляющий triggers по расписанию.
type Scheduler struct {
	submitter Submitter
	leader    Leader
	location  *time.Location
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	entries []*entry
	fired   map[string]time.Time
}

// New создаёт Scheduler. Возвращает ошибку для невалидного выражения.
func New(cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		submitter: cfg.Submitter,
		leader:    cfg.Leader,
		location:  cfg.Location,
		interval:  cfg.TickInterval,
		now:       cfg.Now,
		logger:    cfg.Logger,
		fired:     make(map[string]time.Time),
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.interval <= 0 {
		s.interval = defaultTickInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	start := s.now()
	for _, expr := range cfg.Schedules {
		next, err := NextFire(expr, start, s.location)
		if err != nil {
			return nil, err
		}
		s.entries = append(s.entries, &entry{expr: expr, next: next})
	}
	return s, nil
}

// Next возвращает ближайшее время срабатывания (zero, если расписаний нет).
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	for _, e := range s.entries {
		if next.IsZero() || e.next.Before(next) {
			next = e.next
		}
	}
	return next
}

// Tick выполняет один тик планировщика.
//
// 1. Находит выражения с наступившим временем срабатывания
// 2. Для каждого отправляет Trigger
// 3. Сдвигает время следующего срабатывания
//
// Несколько выражений с одинаковым временем дают один запуск.
// Ошибки одного выражения не блокируют обработку остальных.
// Процесс, не ставший лидером, только сдвигает время срабатывания.
// Возвращает количество отправленных triggers.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []time.Time
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		due = append(due, e.next)

		next, err := NextFire(e.expr, now, s.location)
		if err != nil {
			s.logger.Error("failed to calculate next fire", "cron", e.expr, "error", err)
			continue
		}
		e.next = next
	}
	s.mu.Unlock()

	if len(due) == 0 || !s.lead(ctx) {
		return 0
	}

	defer s.prune()

	var submitted int
	for _, fireAt := range due {
		buildID := BuildID(fireAt)
		if !s.claim(buildID, fireAt) {
			s.logger.Debug("schedule already fired", "build_id", buildID)
			continue
		}

		run, err := s.submitter.Submit(ctx, domain.Trigger{
			BuildID:     buildID,
			Source:      domain.TriggerSourceSchedule,
			RequestedAt: now,
		})
		if err != nil {
			s.logger.Error("failed to submit scheduled run", "build_id", buildID, "error", err)
			continue
		}

		submitted++
		s.logger.Info("submitted scheduled run",
			"run_id", run.ID,
			"build_id", buildID,
			"fire_at", fireAt,
		)
	}

	return submitted
}

// Run тикает до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.submitter == nil {
		return ErrNoSubmitter
	}
	if len(s.entries) == 0 {
		s.logger.Info("no schedules configured")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("scheduler started", "schedules", len(s.entries), "next", s.Next())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// lead сообщает, является ли процесс лидером.
func (s *Scheduler) lead(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}
	ok, err := s.leader.TryLead(ctx)
	if err != nil {
		s.logger.Error("leader election failed", "error", err)
		return false
	}
	if !ok {
		s.logger.Debug("not a leader, skipping scheduled fire")
	}
	return ok
}

// claim помечает build id как запущенный. false — уже был.
func (s *Scheduler) claim(buildID string, fireAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fired[buildID]; ok {
		return false
	}
	s.fired[buildID] = fireAt
	return true
}

// prune забывает запуски раньше ближайшего срабатывания: они уже
// не могут наступить повторно.
func (s *Scheduler) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, e := range s.entries {
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	for buildID, fireAt := range s.fired {
		if fireAt.Before(earliest) {
			delete(s.fired, buildID)
		}
	}
}
