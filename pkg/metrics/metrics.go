package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签取值
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
	ResultStale    = "stale"
)

var (
	// ── 台账 ──

	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"op", "result"}, // op: check_in | check_out | break_start | break_end | correct
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including lock wait and commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// ── 实时镜像 ──

	MirrorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_writes_total",
			Help: "Total number of realtime mirror writes",
		},
		[]string{"target", "result"}, // target: status | aggregate
	)

	PropagationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propagation_failures_total",
			Help: "Committed events that a downstream consumer failed to apply",
		},
		[]string{"consumer"},
	)

	// ── 发件箱 ──

	OutboxRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_relayed_total",
			Help: "Total number of outbox events handed to the dispatcher",
		},
		[]string{"result"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Outbox events claimed in the last relay batch",
		},
	)

	// ── 熔断器 ──

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// ── HTTP ──

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveLedger 记录一次台账操作的结果与耗时
func ObserveLedger(op string, start time.Time, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	LedgerOperations.WithLabelValues(op, result).Inc()
	LedgerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
