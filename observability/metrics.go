/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       Prometheus metrics registry exposed at /metrics:
             ingestion counters (received/written/dropped/spooled),
             executor query latency and budget rejections, planner
             compile outcomes, circuit breaker state, and contract
             sentinel pass/fail status.
Context:     Backs Grafana dashboards and the alerting layer's
             high-rejection-rate / circuit-open checks.
Suitability: L2 — standard Prometheus instrumentation pattern.
──────────────────────────────────────────────────────────────
*/

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus metrics registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived   *prometheus.CounterVec
	EventsWritten    *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	EventsSpooled    *prometheus.CounterVec
	EventsRedacted   *prometheus.CounterVec

	QueryDuration   *prometheus.HistogramVec
	QueryRowsReturned *prometheus.HistogramVec
	BudgetRejections *prometheus.CounterVec

	PlanCompileOutcome *prometheus.CounterVec

	CircuitState *prometheus.GaugeVec

	ContractPass prometheus.Gauge

	DashboardPublishes *prometheus.CounterVec
}

// NewMetrics builds and registers the metrics registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	contractPass := factory.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerview_contract_passed",
		Help: "1 if the last contract sentinel check passed, 0 otherwise.",
	})

	return &Metrics{
		registry: reg,

		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_events_received_total",
			Help: "Events accepted by Emit before validation outcome.",
		}, []string{"source"}),

		EventsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_events_written_total",
			Help: "Events successfully flushed to the landing table.",
		}, []string{"lane"}),

		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_events_dropped_total",
			Help: "Events dropped at emit time, by reason.",
		}, []string{"reason"}),

		EventsSpooled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_events_spooled_total",
			Help: "Events written to the local disk spool after a flush failure.",
		}, []string{"reason"}),

		EventsRedacted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_events_redacted_total",
			Help: "PII redaction hits by pattern kind.",
		}, []string{"kind"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerview_query_duration_ms",
			Help:    "Executor query runtime in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"template", "outcome"}),

		QueryRowsReturned: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerview_query_rows_returned",
			Help:    "Row counts returned by executed queries.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"template"}),

		BudgetRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_budget_rejections_total",
			Help: "Queries rejected for exceeding a caller's budget.",
		}, []string{"role", "dimension"}),

		PlanCompileOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_plan_compile_total",
			Help: "Query plan compilations by path and outcome.",
		}, []string{"path", "outcome"}),

		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgerview_circuit_state",
			Help: "Ingestion circuit breaker state (0=closed,1=half_open,2=open).",
		}, []string{"key"}),

		ContractPass: contractPass,

		DashboardPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerview_dashboard_publishes_total",
			Help: "Dashboard factory publish outcomes by stage.",
		}, []string{"stage"}),
	}
}

// Handler returns the Prometheus text-exposition HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetContractPassed records the contract sentinel's last outcome.
func (m *Metrics) SetContractPassed(passed bool) {
	if passed {
		m.ContractPass.Set(1)
	} else {
		m.ContractPass.Set(0)
	}
}
