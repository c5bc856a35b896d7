// Package metrics provides Prometheus metrics for the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cdms"

var (
	// AuthResolutionsTotal counts credential resolutions by strategy and outcome.
	AuthResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_resolutions_total",
			Help:      "Total number of bearer credential resolutions",
		},
		[]string{"strategy", "outcome"},
	)

	// CacheLookupsTotal counts analytics cache lookups.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of analytics cache lookups",
		},
		[]string{"table", "result"},
	)

	// AnalyticsPagesTotal counts upstream page fetches.
	AnalyticsPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_pages_total",
			Help:      "Total number of analytics page fetches",
		},
		[]string{"table", "status"},
	)

	// AnalyticsFetchDuration measures full-table fetch duration.
	AnalyticsFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_fetch_duration_seconds",
			Help:      "Duration of full-table analytics fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)
)

// RecordAuth records the outcome of one resolution.
func RecordAuth(strategy, outcome string) {
	AuthResolutionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordCacheLookup records a cache hit or miss for a table.
func RecordCacheLookup(table string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(table, result).Inc()
}

// RecordPage records a single upstream page fetch.
func RecordPage(table, status string) {
	AnalyticsPagesTotal.WithLabelValues(table, status).Inc()
}

// RecordFetch records the duration of a full-table fetch.
func RecordFetch(table string, seconds float64) {
	AnalyticsFetchDuration.WithLabelValues(table).Observe(seconds)
}
