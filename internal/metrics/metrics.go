package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the optimizer
	Registry = prometheus.NewRegistry()

	// ProviderRequests counts outbound provider calls by provider and outcome
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_requests_total", Help: "Outbound geocoding/routing provider calls."},
		[]string{"provider", "outcome"},
	)
	// ProviderDuration records provider call latency in seconds, retries included
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "provider_request_duration_seconds", Help: "Provider call duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"provider"},
	)
	// PipelineRuns counts optimization runs by backend and outcome
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_runs_total", Help: "Route optimization runs."},
		[]string{"backend", "outcome"},
	)
	// UnresolvedAddresses counts addresses or cells reported as unresolved
	UnresolvedAddresses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unresolved_lookups_total", Help: "Lookups recorded in the resolution report."},
		[]string{"backend"},
	)
	// CacheLookups counts cache hits and misses by cache name
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_lookups_total", Help: "Geocode and distance cache lookups."},
		[]string{"cache", "result"},
	)
	// SolverDuration records wall time spent in the tour solver
	SolverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_duration_seconds", Help: "Tour solver wall time in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 20, 30}},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(ProviderRequests)
		Registry.MustRegister(ProviderDuration)
		Registry.MustRegister(PipelineRuns)
		Registry.MustRegister(UnresolvedAddresses)
		Registry.MustRegister(CacheLookups)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// ObserveProvider records one provider call that started at start
func ObserveProvider(provider, outcome string, start time.Time) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
