package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all reconciliation metrics.
type Registry struct {
	reg *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	LastRun           prometheus.Gauge
	LastSuccess       prometheus.Gauge
	PhaseFailures     *prometheus.CounterVec
	FetchErrors       *prometheus.CounterVec
	AllowSetSize      *prometheus.GaugeVec
	AllowSetChanges   *prometheus.CounterVec
	TransactionsTotal *prometheus.CounterVec
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry creates a registry backed by its own prometheus.Registry so
// the exposition holds only originguard series.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "originguard_runs_total",
		Help: "Reconciliation runs by result",
	}, []string{"result"})

	r.RunDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "originguard_run_duration_seconds",
		Help:    "Duration of reconciliation runs",
		Buckets: prometheus.DefBuckets,
	})

	r.LastRun = factory.NewGauge(prometheus.GaugeOpts{
		Name: "originguard_last_run_timestamp_seconds",
		Help: "Unix time of the last reconciliation run",
	})

	r.LastSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Name: "originguard_last_success_timestamp_seconds",
		Help: "Unix time of the last successful reconciliation run",
	})

	r.PhaseFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "originguard_phase_failures_total",
		Help: "Failed runs by the phase that failed",
	}, []string{"phase"})

	r.FetchErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "originguard_fetch_errors_total",
		Help: "Edge list fetch failures by kind",
	}, []string{"kind"})

	r.AllowSetSize = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "originguard_allowset_size",
		Help: "Number of addresses in each allow-set after the last run",
	}, []string{"family"})

	r.AllowSetChanges = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "originguard_allowset_changes_total",
		Help: "Addresses added to or removed from the allow-sets",
	}, []string{"family", "op"})

	r.TransactionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "originguard_transactions_total",
		Help: "Backend transactions applied by kind and result",
	}, []string{"kind", "result"})

	return r
}

// RegisterRuntimeCollectors adds Go runtime and process metrics. Only the
// HTTP endpoint wants them; node_exporter already exports its own.
func (r *Registry) RegisterRuntimeCollectors() {
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordRun records the outcome of one run. failedPhase is empty on success.
func (r *Registry) RecordRun(failedPhase string, duration time.Duration, at time.Time) {
	r.RunDuration.Observe(duration.Seconds())
	r.LastRun.Set(float64(at.Unix()))
	if failedPhase != "" {
		r.RunsTotal.WithLabelValues("failure").Inc()
		r.PhaseFailures.WithLabelValues(failedPhase).Inc()
		return
	}
	r.RunsTotal.WithLabelValues("success").Inc()
	r.LastSuccess.Set(float64(at.Unix()))
}

// RecordFetchError records a failed edge list fetch.
func (r *Registry) RecordFetchError(kind string) {
	r.FetchErrors.WithLabelValues(kind).Inc()
}

// RecordAllowSet records the size of a family's allow-set and the changes
// applied to it.
func (r *Registry) RecordAllowSet(family string, size, added, removed int) {
	r.AllowSetSize.WithLabelValues(family).Set(float64(size))
	r.AllowSetChanges.WithLabelValues(family, "add").Add(float64(added))
	r.AllowSetChanges.WithLabelValues(family, "remove").Add(float64(removed))
}

// RecordTransaction records an applied backend transaction.
func (r *Registry) RecordTransaction(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.TransactionsTotal.WithLabelValues(kind, result).Inc()
}

// WriteTextfile writes the metrics for node_exporter's textfile collector.
// The file is written to a temporary name and renamed into place.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

// Handler serves the metrics over HTTP.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
