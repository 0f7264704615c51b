package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fydai"

var (
	seriesMetricsOnce sync.Once
	seriesRegistry    *SeriesMetrics

	authzMetricsOnce sync.Once
	authzRegistry    *AuthzMetrics

	executionMetricsOnce sync.Once
	executionRegistry    *ExecutionMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// SeriesMetrics tracks snapshot refreshes.
type SeriesMetrics struct {
	refreshes *prometheus.CounterVec
	duration  prometheus.Histogram
	illiquid  prometheus.Counter
	tracked   prometheus.Gauge
}

// Series returns the lazily-initialised series aggregator registry.
func Series() *SeriesMetrics {
	seriesMetricsOnce.Do(func() {
		seriesRegistry = &SeriesMetrics{
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "series",
				Name:      "refresh_total",
				Help:      "Per-series refresh attempts segmented by outcome.",
			}, []string{"outcome"}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "series",
				Name:      "refresh_duration_seconds",
				Help:      "Latency distribution for full refresh passes.",
				Buckets:   prometheus.DefBuckets,
			}),
			illiquid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "series",
				Name:      "illiquid_total",
				Help:      "Count of quotes estimated from reserves because the pool could not fill a preview.",
			}),
			tracked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "series",
				Name:      "tracked",
				Help:      "Number of series held in the snapshot.",
			}),
		}
		prometheus.MustRegister(
			seriesRegistry.refreshes,
			seriesRegistry.duration,
			seriesRegistry.illiquid,
			seriesRegistry.tracked,
		)
	})
	return seriesRegistry
}

// RecordRefresh counts one series refresh.
func (m *SeriesMetrics) RecordRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
}

// ObservePass records the duration of a refresh pass and the snapshot size.
func (m *SeriesMetrics) ObservePass(d time.Duration, tracked int) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	m.tracked.Set(float64(tracked))
}

// RecordIlliquid counts a reserve-estimated quote.
func (m *SeriesMetrics) RecordIlliquid() {
	if m == nil {
		return
	}
	m.illiquid.Inc()
}

// AuthzMetrics tracks authorization resolutions.
type AuthzMetrics struct {
	resolutions *prometheus.CounterVec
}

// Authz returns the authorization registry.
func Authz() *AuthzMetrics {
	authzMetricsOnce.Do(func() {
		authzRegistry = &AuthzMetrics{
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "resolutions_total",
				Help:      "Authorization resolutions segmented by strategy and outcome (signed, approved, cancelled).",
			}, []string{"strategy", "outcome"}),
		}
		prometheus.MustRegister(authzRegistry.resolutions)
	})
	return authzRegistry
}

// Observe counts a resolution.
func (m *AuthzMetrics) Observe(strategy, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(label(strategy), label(outcome)).Inc()
}

// ExecutionMetrics tracks submitted actions.
type ExecutionMetrics struct {
	actions *prometheus.CounterVec
	confirm *prometheus.HistogramVec
}

// Execution returns the execution pipeline registry.
func Execution() *ExecutionMetrics {
	executionMetricsOnce.Do(func() {
		executionRegistry = &ExecutionMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "execution",
				Name:      "actions_total",
				Help:      "Actions segmented by verb and terminal state.",
			}, []string{"verb", "outcome"}),
			confirm: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "execution",
				Name:      "confirm_duration_seconds",
				Help:      "Time from broadcast to receipt.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			}, []string{"verb"}),
		}
		prometheus.MustRegister(executionRegistry.actions, executionRegistry.confirm)
	})
	return executionRegistry
}

// RecordAction counts a terminal action state.
func (m *ExecutionMetrics) RecordAction(verb, state string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(label(verb), label(state)).Inc()
}

// ObserveConfirm records how long a receipt took.
func (m *ExecutionMetrics) ObserveConfirm(verb string, d time.Duration) {
	if m == nil {
		return
	}
	m.confirm.WithLabelValues(label(verb)).Observe(d.Seconds())
}

// HTTPMetrics tracks the query API.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the query API registry.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queryapi",
				Name:      "requests_total",
				Help:      "Query API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queryapi",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for query API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queryapi",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records a handled request. Status is the HTTP status written.
func (m *HTTPMetrics) Observe(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if status >= 400 {
		result = "error"
	}
	route = label(route)
	m.requests.WithLabelValues(route, result).Inc()
	m.latency.WithLabelValues(route).Observe(d.Seconds())
}

// RecordThrottle counts a rate-limited request.
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
