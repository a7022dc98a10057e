// Package observability provides the prometheus collector and OpenTelemetry
// setup shared by the consistency core and its HTTP surface.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for one application instance. Each
// collector owns its registry so independent instances never collide.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Transaction coordinator
	Transactions        *prometheus.CounterVec
	TransactionDuration prometheus.Histogram

	// Resolution queries
	ResolutionCandidates *prometheus.CounterVec
	ResolutionUnknown    *prometheus.CounterVec
	ResolutionQueries    *prometheus.CounterVec

	// Ontology cache
	CacheLookups       *prometheus.CounterVec
	CachePopulations   *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	CacheEntries       *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Coordinated transactions by outcome",
			},
			[]string{"outcome"},
		),
		TransactionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of coordinated transactions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ResolutionCandidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_candidates_total",
				Help:      "Candidate URIs submitted to resolution queries",
			},
			[]string{"strategy"},
		),
		ResolutionUnknown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_unknown_total",
				Help:      "Candidate URIs that did not resolve",
			},
			[]string{"strategy"},
		),
		ResolutionQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_store_queries_total",
				Help:      "Triple store queries issued by resolution queries",
			},
			[]string{"strategy", "kind"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ontology_cache_lookups_total",
				Help:      "Ontology cache lookups by result (hit, miss, bypass)",
			},
			[]string{"cache", "result"},
		),
		CachePopulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ontology_cache_populations_total",
				Help:      "Ontology cache population calls by status",
			},
			[]string{"cache", "status"},
		),
		CacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ontology_cache_invalidations_total",
				Help:      "Ontology cache invalidations by scope",
			},
			[]string{"scope"},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ontology_cache_entries",
				Help:      "Live ontology cache entries",
			},
			[]string{"cache"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Transactions,
		c.TransactionDuration,
		c.ResolutionCandidates,
		c.ResolutionUnknown,
		c.ResolutionQueries,
		c.CacheLookups,
		c.CachePopulations,
		c.CacheInvalidations,
		c.CacheEntries,
	)
	return c
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TransactionFinished records a coordinated transaction outcome.
func (c *Collector) TransactionFinished(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Transactions.WithLabelValues(outcome).Inc()
	c.TransactionDuration.Observe(elapsed.Seconds())
}

// ResolutionStarted records the size of a candidate set.
func (c *Collector) ResolutionStarted(strategy string, candidates int) {
	if c == nil {
		return
	}
	c.ResolutionCandidates.WithLabelValues(strategy).Add(float64(candidates))
}

// ResolutionQueried records one store round trip of a resolution query.
func (c *Collector) ResolutionQueried(strategy, kind string) {
	if c == nil {
		return
	}
	c.ResolutionQueries.WithLabelValues(strategy, kind).Inc()
}

// ResolutionUnknowns records URIs found unknown.
func (c *Collector) ResolutionUnknowns(strategy string, unknown int) {
	if c == nil {
		return
	}
	c.ResolutionUnknown.WithLabelValues(strategy).Add(float64(unknown))
}

// CacheLookup records a cache lookup result.
func (c *Collector) CacheLookup(cache, result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(cache, result).Inc()
}

// CachePopulated records a population call.
func (c *Collector) CachePopulated(cache string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.CachePopulations.WithLabelValues(cache, status).Inc()
}

// CacheInvalidated records an invalidation.
func (c *Collector) CacheInvalidated(scope string) {
	if c == nil {
		return
	}
	c.CacheInvalidations.WithLabelValues(scope).Inc()
}

// CacheSize sets the number of live entries of a cache.
func (c *Collector) CacheSize(cache string, entries int) {
	if c == nil {
		return
	}
	c.CacheEntries.WithLabelValues(cache).Set(float64(entries))
}
