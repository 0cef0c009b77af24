package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	tileCacheHits       prometheus.Counter
	tileCacheMisses     prometheus.Counter
	tileCacheEvictions  prometheus.Counter
	searchRequests      *prometheus.CounterVec
	searchDuration      prometheus.Histogram
	staleDiscards       prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, cache and search metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by map-core",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapcore",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by map-core",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	tileCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "tile_cache_hits_total",
		Help:      "Tiles served from the local cache",
	})

	tileCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "tile_cache_misses_total",
		Help:      "Tiles fetched from the upstream tile server",
	})

	tileCacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "tile_cache_evictions_total",
		Help:      "Tile cache entries evicted by TTL or capacity pruning",
	})

	searchRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "search_requests_total",
		Help:      "Upstream item search requests by outcome",
	}, []string{"kind", "outcome"})

	searchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapcore",
		Name:      "search_request_duration_seconds",
		Help:      "Duration of upstream item search requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	staleDiscards := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapcore",
		Name:      "stale_responses_discarded_total",
		Help:      "Search responses discarded because a newer query superseded them",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		tileCacheHits,
		tileCacheMisses,
		tileCacheEvictions,
		searchRequests,
		searchDuration,
		staleDiscards,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		tileCacheHits:       tileCacheHits,
		tileCacheMisses:     tileCacheMisses,
		tileCacheEvictions:  tileCacheEvictions,
		searchRequests:      searchRequests,
		searchDuration:      searchDuration,
		staleDiscards:       staleDiscards,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncTileCacheHit counts a tile served from the local cache.
func (m *Metrics) IncTileCacheHit() {
	if m == nil {
		return
	}
	m.tileCacheHits.Inc()
}

// IncTileCacheMiss counts a tile fetched from the upstream tile server.
func (m *Metrics) IncTileCacheMiss() {
	if m == nil {
		return
	}
	m.tileCacheMisses.Inc()
}

// AddTileCacheEvictions counts entries dropped by pruning.
func (m *Metrics) AddTileCacheEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tileCacheEvictions.Add(float64(n))
}

// ObserveSearch records one upstream search request.
func (m *Metrics) ObserveSearch(kind string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.searchRequests.With(prometheus.Labels{"kind": kind, "outcome": outcome}).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// IncStaleDiscard counts a search response dropped by the stale-response guard.
func (m *Metrics) IncStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
