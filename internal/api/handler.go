package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// RunService — выполнение runs (trigger.Service).
type RunService interface {
	Submit(ctx context.Context, trigger domain.Trigger) (domain.Run, error)
	Cancel(id uuid.UUID) error
	Get(id uuid.UUID) (*pipeline.Execution, bool)
	List() []domain.Run
	Active() int
}

// RunHistory — сохранённые runs (repo.RunRepo).
type RunHistory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	ListStages(ctx context.Context, runID uuid.UUID) ([]domain.StageRecord, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service  RunService
	history  RunHistory
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
	logger   *slog.Logger
	started  time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service RunService

	// History — опционально; без него API знает только runs этого процесса.
	History RunHistory

	// Gatherer — источник /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// Registerer — куда регистрировать счётчик HTTP запросов (nil — без счётчика).
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	var requests *prometheus.CounterVec
	if cfg.Registerer != nil {
		requests = newRequestCounter(cfg.Registerer)
	}
	return &Handler{
		service:  cfg.Service,
		history:  cfg.History,
		gatherer: gatherer,
		requests: requests,
		logger:   logger,
		started:  time.Now(),
	}
}

// Healthz отвечает, что процесс жив.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	Success(w, HealthResponse{
		Status:     "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		ActiveRuns: h.service.Active(),
	})
}

// Metrics отдаёт метрики Prometheus.
// GET /metrics
func (h *Handler) Metrics() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}

// log возвращает логгер запроса (с request_id) или логгер handler'а.
func (h *Handler) log(r *http.Request) *slog.Logger {
	if logger, ok := r.Context().Value(telemetry.CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return h.logger
}
