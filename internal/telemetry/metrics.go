package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Metrics — Prometheus метрики выполнения pipelines.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	gateWait      *prometheus.HistogramVec
	rolloutPolls  *prometheus.CounterVec
	activeRuns    prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_total",
			Help: "Total finished pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_stage_duration_seconds",
			Help:    "Stage execution time",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"pipeline", "stage"}),

		gateWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_gate_wait_seconds",
			Help:    "Time spent waiting for a gate decision",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),

		rolloutPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_rollout_polls_total",
			Help: "Rollout status polls by final rollout result",
		}, []string{"result"}),

		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_active_runs",
			Help: "Pipeline runs currently executing",
		}),
	}
}

// RunStarted учитывает начало run.
func (m *Metrics) RunStarted(_ string) {
	m.activeRuns.Inc()
}

// RunFinished учитывает завершение run.
func (m *Metrics) RunFinished(pipeline string, outcome domain.Outcome) {
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(pipeline, string(outcome.Kind)).Inc()
}

// StageFinished учитывает длительность stage.
func (m *Metrics) StageFinished(pipeline, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}

// GateWaited учитывает ожидание gate.
func (m *Metrics) GateWaited(result string, d time.Duration) {
	m.gateWait.WithLabelValues(result).Observe(d.Seconds())
}

// RolloutWatched учитывает опросы rollout.
func (m *Metrics) RolloutWatched(result string, polls int) {
	m.rolloutPolls.WithLabelValues(result).Add(float64(polls))
}
