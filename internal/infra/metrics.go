package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Health: последний рассчитанный балл 0..100
	HealthScore prometheus.Gauge

	// Sampling: отказы отдельных полей снимка (поле деградирует в "нет данных")
	SampleFailures *prometheus.CounterVec

	// Probe: длительность активного сетевого зонда
	ProbeDuration *prometheus.HistogramVec

	// Saturation: состояние Circuit Breaker зонда (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: баллы категорий и общий
	AuditCategoryScore *prometheus.GaugeVec
	AuditOverallScore  prometheus.Gauge
	AuditDuration      prometheus.Histogram

	// Optimizer: применения действий по результату (applied, skipped, failed)
	OptimizationActions *prometheus.CounterVec

	// Recovery: сигналы отказов, попытки стратегий, текущий счетчик
	FailureSignals   *prometheus.CounterVec
	RecoveryAttempts *prometheus.CounterVec
	FailureCount     prometheus.Gauge

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge

	// Latency HTTP API дашборда
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		HealthScore: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vitals_health_score",
			Help: "Latest health score (0-100).",
		}),

		SampleFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vitals_sample_failures_total",
			Help: "Telemetry fields that could not be sampled.",
		}, []string{"field"}),

		ProbeDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitals_probe_duration_seconds",
			Help:    "Histogram of round-trip probe latencies.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"result"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vitals_circuit_breaker_state",
			Help: "Current state of the probe circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"probe"}),

		AuditCategoryScore: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vitals_audit_category_score",
			Help: "Score of the latest audit per category (0, 0.5, 1).",
		}, []string{"category"}),

		AuditOverallScore: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vitals_audit_overall_score",
			Help: "Overall score of the latest audit (0-100).",
		}),

		AuditDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "vitals_audit_duration_seconds",
			Help:    "Histogram of audit run durations.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
		}),

		OptimizationActions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vitals_optimization_actions_total",
			Help: "Optimization actions by result.",
		}, []string{"action", "result"}),

		FailureSignals: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vitals_failure_signals_total",
			Help: "Uncaught failure signals by type.",
		}, []string{"type"}), // uncaught_error, unhandled_rejection, offline

		RecoveryAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vitals_recovery_attempts_total",
			Help: "Recovery strategy attempts by result.",
		}, []string{"strategy", "result"}),

		FailureCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vitals_failure_count",
			Help: "Current failure counter of the recovery supervisor.",
		}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vitals_journal_buffer_utilization",
			Help: "Current number of events in journal buffer.",
		}),

		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitals_request_duration_seconds",
			Help:    "Histogram of dashboard API latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),
	}
}
