// Package metrics exposes the Prometheus collectors shared by the steady binaries.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PeriodsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_periods_appended_total",
		Help: "Total number of earnings periods committed to the store.",
	})
	CorrectionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_corrections_applied_total",
		Help: "Total number of corrections committed to the store.",
	})
	WritesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steady_writes_rejected_total",
		Help: "Rejected store writes by error kind.",
	}, []string{"kind"})
	StoreVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steady_store_version",
		Help: "Current version of the earnings store.",
	})
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "steady_query_duration_seconds",
		Help:    "Duration of analytics queries.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"query"})
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steady_cache_lookups_total",
		Help: "Query cache lookups by query and result.",
	}, []string{"query", "result"})
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "steady_cache_entries",
		Help: "Entries held per query cache after the last sweep.",
	}, []string{"cache"})
	CacheExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steady_cache_expired_total",
		Help: "Cache entries removed by age.",
	}, []string{"cache"})
	ForecastsDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_forecasts_degraded_total",
		Help: "Total number of forecasts computed in fallback mode.",
	})
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steady_messages_consumed_total",
		Help: "Ingestion messages consumed by type and outcome.",
	}, []string{"type", "outcome"})
	DigestsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_digests_published_total",
		Help: "Total number of overview digests published to Redis.",
	})
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steady_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "steady_http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
	RateLimitClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steady_http_rate_limit_clients",
		Help: "Clients currently tracked by the rate limiter.",
	})
	SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steady_http_suspicious_requests_total",
		Help: "Requests matching a known attack pattern.",
	})
)

// ObserveQuery records the time since start under the given query name.
func ObserveQuery(query string, start time.Time) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

func CacheHit(query string)  { CacheLookups.WithLabelValues(query, "hit").Inc() }
func CacheMiss(query string) { CacheLookups.WithLabelValues(query, "miss").Inc() }

// ObserveHTTP records one served request.
func ObserveHTTP(method string, status int, start time.Time) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
