// Package telemetry exposes resolution jobs to prometheus and opentelemetry.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/entres/am"
	"github.com/teranos/entres/resolution"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "entres"

// Query outcome labels
const (
	QueryOK     = "ok"
	QueryFailed = "failed"
)

// Metrics records job, hop, and query events as prometheus metrics. It is a
// resolution.Observer; a disabled Metrics ignores every event.
type Metrics struct {
	registry *prometheus.Registry

	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobHops       prometheus.Histogram
	activeJobs    prometheus.Gauge

	hopHits       prometheus.Histogram
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewMetrics builds the collectors on a private registry
func NewMetrics(cfg am.TelemetryConfig) *Metrics {
	if !cfg.Metrics {
		return &Metrics{}
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		running:  make(map[string]struct{}),

		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Resolution jobs that started running",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Resolution jobs that reached a terminal state",
		}, []string{"state", "termination"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of resolution jobs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		jobHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_hops",
			Help:      "Hops run per resolution job",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Resolution jobs currently running",
		}),
		hopHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hop_hits",
			Help:      "New documents found per hop",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Document store queries by collection and outcome",
		}, []string{"collection", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of document store queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
	}

	m.registry.MustRegister(
		m.jobsStarted,
		m.jobsCompleted,
		m.jobDuration,
		m.jobHops,
		m.activeJobs,
		m.hopHits,
		m.queries,
		m.queryDuration,
	)
	return m
}

// Enabled reports whether events are recorded
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Registry is the private registry, nil when disabled
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// OnEvent implements resolution.Observer
func (m *Metrics) OnEvent(e resolution.Event) {
	if !m.Enabled() {
		return
	}

	switch e.Type {
	case resolution.EventStateChanged:
		m.stateChanged(e)
	case resolution.EventHopCompleted:
		m.hopHits.Observe(float64(e.Hits))
	case resolution.EventQueryCompleted:
		m.queries.WithLabelValues(e.Collection, QueryOK).Inc()
		m.queryDuration.WithLabelValues(e.Collection).Observe(e.Duration.Seconds())
	case resolution.EventQueryFailed:
		m.queries.WithLabelValues(e.Collection, QueryFailed).Inc()
		m.queryDuration.WithLabelValues(e.Collection).Observe(e.Duration.Seconds())
	}
}

func (m *Metrics) stateChanged(e resolution.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.State == resolution.JobRunning {
		m.running[e.JobID] = struct{}{}
		m.jobsStarted.Inc()
		m.activeJobs.Inc()
		return
	}
	if !e.State.Terminal() {
		return
	}

	// Jobs rejected before running never counted as active
	if _, ok := m.running[e.JobID]; ok {
		delete(m.running, e.JobID)
		m.activeJobs.Dec()
	}
	m.jobsCompleted.WithLabelValues(string(e.State), e.Termination).Inc()
	m.jobDuration.WithLabelValues(string(e.State)).Observe(e.Duration.Seconds())
	m.jobHops.Observe(float64(e.Hop))
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
