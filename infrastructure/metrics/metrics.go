// Package metrics provides Prometheus metrics collection for the kernel.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dominium-sim/simkernel/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics exposed by the kernel's
// observability surface.
type Metrics struct {
	// HTTP metrics (observability surface, not the tick path)
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Tick metrics
	TickDuration  *prometheus.HistogramVec
	TickTotal     *prometheus.CounterVec
	WorldHash     prometheus.Gauge

	// AI scheduler metrics
	SchedulerBudgetHitTotal *prometheus.CounterVec
	SchedulerOpsUsed        *prometheus.HistogramVec

	// Command application metrics
	TransfersAppliedTotal  *prometheus.CounterVec
	ProductionAppliedTotal *prometheus.CounterVec

	// Save container metrics
	SaveDuration *prometheus.HistogramVec
	SaveBytes    prometheus.Histogram

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_tick_duration_seconds",
				Help:    "Kernel tick advance duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service"},
		),
		TickTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ticks_total",
				Help: "Total number of kernel ticks advanced",
			},
			[]string{"service"},
		),
		WorldHash: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_world_hash",
				Help: "Rolling world hash of the most recently advanced tick, truncated to a float64-safe range for desync dashboards",
			},
		),

		SchedulerBudgetHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ai_scheduler_budget_hit_total",
				Help: "Total number of AI scheduler faction slots that hit their ops or faction budget",
			},
			[]string{"service"},
		),
		SchedulerOpsUsed: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_ai_scheduler_ops_used",
				Help:    "Ops consumed per AI scheduler faction slot",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
			[]string{"service"},
		),

		TransfersAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_transfers_applied_total",
				Help: "Total number of logistics transfers applied, by outcome",
			},
			[]string{"service", "status"},
		),
		ProductionAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_production_applied_total",
				Help: "Total number of production ledger ticks applied, by outcome",
			},
			[]string{"service", "status"},
		),

		SaveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_save_duration_seconds",
				Help:    "Save container write/load duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"service", "operation"},
		),
		SaveBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kernel_save_bytes",
				Help:    "Save container size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.TickDuration,
			m.TickTotal,
			m.WorldHash,
			m.SchedulerBudgetHitTotal,
			m.SchedulerOpsUsed,
			m.TransfersAppliedTotal,
			m.ProductionAppliedTotal,
			m.SaveDuration,
			m.SaveBytes,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordTick records one completed tick advance and refreshes the world
// hash gauge. worldHash is truncated to the low 53 bits so it round-trips
// through a float64 without precision loss; the full 64-bit digest belongs
// to the save container and trace records, not the gauge.
func (m *Metrics) RecordTick(service string, duration time.Duration, worldHash uint64) {
	m.TickDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.TickTotal.WithLabelValues(service).Inc()
	m.WorldHash.Set(float64(worldHash & ((1 << 53) - 1)))
}

// RecordSchedulerSlot records one AI scheduler faction slot's budget outcome.
func (m *Metrics) RecordSchedulerSlot(service string, opsUsed uint32, budgetHit bool) {
	m.SchedulerOpsUsed.WithLabelValues(service).Observe(float64(opsUsed))
	if budgetHit {
		m.SchedulerBudgetHitTotal.WithLabelValues(service).Inc()
	}
}

// RecordTransferApplied records a logistics transfer apply outcome.
func (m *Metrics) RecordTransferApplied(service, status string) {
	m.TransfersAppliedTotal.WithLabelValues(service, status).Inc()
}

// RecordProductionApplied records a production ledger apply outcome.
func (m *Metrics) RecordProductionApplied(service, status string) {
	m.ProductionAppliedTotal.WithLabelValues(service, status).Inc()
}

// RecordSave records a save container write or load.
func (m *Metrics) RecordSave(service, operation string, duration time.Duration, bytesWritten int) {
	m.SaveDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
	if bytesWritten > 0 {
		m.SaveBytes.Observe(float64(bytesWritten))
	}
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
