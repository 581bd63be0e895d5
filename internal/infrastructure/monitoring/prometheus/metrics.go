package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
)

// ProtonationMetrics holds every metric the services export.  It satisfies
// the batch driver's Metrics, the engine's Observer and the output cache's
// CacheObserver.
type ProtonationMetrics struct {
	// Pipeline
	StructuresTotal   CounterVec
	HydrogensAdded    CounterVec
	HydrogensSkipped  CounterVec
	StructureDuration HistogramVec

	// Engine
	EngineRunsTotal CounterVec
	EngineDuration  HistogramVec
	EngineCache     CounterVec

	// Worker
	JobsTotal       CounterVec
	JobsInFlight    GaugeVec
	JobRetriesTotal CounterVec

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultEngineDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
)

// NewProtonationMetrics registers all metrics on collector.
func NewProtonationMetrics(collector MetricsCollector) *ProtonationMetrics {
	m := &ProtonationMetrics{}

	m.StructuresTotal = collector.RegisterCounter("structures_total", "Structures processed by outcome", "outcome")
	m.HydrogensAdded = collector.RegisterCounter("hydrogens_added_total", "Hydrogens grafted onto original structures")
	m.HydrogensSkipped = collector.RegisterCounter("hydrogens_skipped_total", "Engine hydrogens that could not be grafted", "reason")
	m.StructureDuration = collector.RegisterHistogram("structure_duration_seconds", "Wall time per structure", DefaultEngineDurationBuckets, "outcome")

	m.EngineRunsTotal = collector.RegisterCounter("engine_runs_total", "Reduce invocations by outcome", "outcome")
	m.EngineDuration = collector.RegisterHistogram("engine_duration_seconds", "Reduce run time", DefaultEngineDurationBuckets, "outcome")
	m.EngineCache = collector.RegisterCounter("engine_cache_total", "Engine output cache lookups", "result")

	m.JobsTotal = collector.RegisterCounter("jobs_total", "Worker jobs by status", "status")
	m.JobsInFlight = collector.RegisterGauge("jobs_in_flight", "Worker jobs being processed")
	m.JobRetriesTotal = collector.RegisterCounter("job_retries_total", "Worker job retries")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests")

	return m
}

// ObserveRun records one finished structure.
func (m *ProtonationMetrics) ObserveRun(run *protonation.Run) {
	outcome := string(run.Outcome)
	m.StructuresTotal.WithLabelValues(outcome).Inc()
	m.StructureDuration.WithLabelValues(outcome).Observe(run.Duration().Seconds())
	if run.Added > 0 {
		m.HydrogensAdded.WithLabelValues().Add(float64(run.Added))
	}
	for reason, n := range run.SkippedBy {
		m.HydrogensSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// EngineRun records one Reduce invocation.
func (m *ProtonationMetrics) EngineRun(outcome string, d time.Duration) {
	m.EngineRunsTotal.WithLabelValues(outcome).Inc()
	m.EngineDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// CacheLookup records one output cache lookup.
func (m *ProtonationMetrics) CacheLookup(result string) {
	m.EngineCache.WithLabelValues(result).Inc()
}

// Job status labels.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobDropped   = "dropped"
)

// JobStarted marks a worker job in flight; the returned func finishes it.
func (m *ProtonationMetrics) JobStarted() func(status string) {
	g := m.JobsInFlight.WithLabelValues()
	g.Inc()
	return func(status string) {
		g.Dec()
		m.JobsTotal.WithLabelValues(status).Inc()
	}
}

// JobRetried counts one redelivery attempt.
func (m *ProtonationMetrics) JobRetried() {
	m.JobRetriesTotal.WithLabelValues().Inc()
}

// RecordHTTPRequest records one served request.
func (m *ProtonationMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

//Personal.AI order the ending
