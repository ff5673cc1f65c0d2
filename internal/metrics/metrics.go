// Package metrics exposes the service's Prometheus instrumentation:
// search outcomes, cache effectiveness, per-protocol adapter outcomes,
// and latency histograms.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arguspanoptes/argus-server/internal/logger"
)

// Search result labels.
const (
	ResultCompleted = "completed"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
)

// Cache outcome labels.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Adapter outcome labels. Besides "ok" these mirror the error taxonomy,
// plus "circuit_open" for requests the breaker refused to send.
const (
	OutcomeOK          = "ok"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics is the set of collectors the service updates. It carries its
// own registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	searches        *prometheus.CounterVec
	cache           *prometheus.CounterVec
	adapterRequests *prometheus.CounterVec

	searchDuration  prometheus.Histogram
	adapterDuration *prometheus.HistogramVec

	inFlight prometheus.Gauge
}

// New builds and registers the service collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_searches_total",
			Help: "Searches by result (completed, partial, failed).",
		}, []string{"result"}),

		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_search_cache_total",
			Help: "Search cache probes by outcome (hit, miss, bypass).",
		}, []string{"outcome"}),

		adapterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_adapter_requests_total",
			Help: "Adapter searches by protocol and outcome.",
		}, []string{"protocol", "outcome"}),

		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_search_duration_seconds",
			Help:    "End-to-end federated search latency.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}),

		adapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_adapter_duration_seconds",
			Help:    "Single-adapter search latency by protocol.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"protocol"}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "argus_searches_in_flight",
			Help: "Federated searches currently executing.",
		}),
	}

	m.registry.MustRegister(
		m.searches, m.cache, m.adapterRequests,
		m.searchDuration, m.adapterDuration, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SearchCompleted records one finished search.
func (m *Metrics) SearchCompleted(result string, elapsed time.Duration) {
	m.searches.WithLabelValues(result).Inc()
	m.searchDuration.Observe(elapsed.Seconds())
}

// CacheProbe records a cache lookup outcome.
func (m *Metrics) CacheProbe(outcome string) {
	m.cache.WithLabelValues(outcome).Inc()
}

// AdapterRequest records one adapter search outcome; outcome is
// OutcomeOK, OutcomeCircuitOpen, or an error kind.
func (m *Metrics) AdapterRequest(protocol, outcome string, elapsed time.Duration) {
	m.adapterRequests.WithLabelValues(protocol, outcome).Inc()
	if elapsed > 0 {
		m.adapterDuration.WithLabelValues(protocol).Observe(elapsed.Seconds())
	}
}

// SearchStarted marks a search in flight; the returned func ends it.
func (m *Metrics) SearchStarted() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ReportPeriodically logs a coarse usage summary until ctx is done.
// The exposition endpoint has the full data; this keeps a trace in the
// logs for deployments without a scraper.
func (m *Metrics) ReportPeriodically(ctx context.Context, log *logger.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			families, err := m.registry.Gather()
			if err != nil {
				log.Error("metrics gather failed", "error", err.Error())
				continue
			}
			var searches, adapterReqs float64
			for _, mf := range families {
				switch mf.GetName() {
				case "argus_searches_total":
					for _, metric := range mf.GetMetric() {
						searches += metric.GetCounter().GetValue()
					}
				case "argus_adapter_requests_total":
					for _, metric := range mf.GetMetric() {
						adapterReqs += metric.GetCounter().GetValue()
					}
				}
			}
			log.Info("usage summary",
				"searchesTotal", int64(searches),
				"adapterRequestsTotal", int64(adapterReqs),
			)
		}
	}
}
