// Package metrics exposes Prometheus counters for the map controller and HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	settleEvents        *prometheus.CounterVec
	fetches             *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec
	staleResponses      prometheus.Counter
	iconLookups         *prometheus.CounterVec
	iconCacheSize       prometheus.Gauge
	breakerState        *prometheus.GaugeVec
}

// New creates a fresh Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diarymap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the map server",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diarymap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the map server",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	settleEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diarymap",
		Name:      "viewport_settle_events_total",
		Help:      "Viewport settle events by outcome (accepted, throttled, invalid)",
	}, []string{"result"})

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diarymap",
		Name:      "viewport_fetches_total",
		Help:      "Backend marker fetches by mode and outcome",
	}, []string{"mode", "result"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diarymap",
		Name:      "viewport_fetch_duration_seconds",
		Help:      "Duration of backend marker fetches including icon resolution",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"mode"})

	staleResponses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "diarymap",
		Name:      "viewport_stale_responses_total",
		Help:      "Fetch responses discarded because a newer viewport superseded them",
	})

	iconLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diarymap",
		Name:      "icon_lookups_total",
		Help:      "Marker icon lookups by result (hit, miss, fallback, cancelled)",
	}, []string{"result"})

	iconCacheSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diarymap",
		Name:      "icon_cache_entries",
		Help:      "Number of rendered icons held in the append-only icon cache",
	})

	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "diarymap",
		Name:      "backend_breaker_state",
		Help:      "Backend circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		settleEvents,
		fetches,
		fetchDuration,
		staleResponses,
		iconLookups,
		iconCacheSize,
		breakerState,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		settleEvents:        settleEvents,
		fetches:             fetches,
		fetchDuration:       fetchDuration,
		staleResponses:      staleResponses,
		iconLookups:         iconLookups,
		iconCacheSize:       iconCacheSize,
		breakerState:        breakerState,
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

// IncSettle counts a viewport settle event by result.
func (m *Metrics) IncSettle(result string) {
	if m == nil {
		return
	}
	m.settleEvents.WithLabelValues(result).Inc()
}

// ObserveFetch records a finished backend fetch.
func (m *Metrics) ObserveFetch(mode, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(mode, result).Inc()
	m.fetchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// IncStale counts a discarded out-of-order response.
func (m *Metrics) IncStale() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

// IncIconLookup counts an icon cache lookup by result.
func (m *Metrics) IncIconLookup(result string) {
	if m == nil {
		return
	}
	m.iconLookups.WithLabelValues(result).Inc()
}

// SetIconCacheSize reports the current icon cache size.
func (m *Metrics) SetIconCacheSize(n int) {
	if m == nil {
		return
	}
	m.iconCacheSize.Set(float64(n))
}

// SetBreakerState reports a circuit breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
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
