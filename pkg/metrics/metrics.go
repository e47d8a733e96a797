// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of events accepted through single-event ingestion.",
		},
	)

	EventKindsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "ingest",
			Name:      "event_kinds_created_total",
			Help:      "Total number of event kinds lazily registered.",
		},
	)

	EventsLoaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "bulkload",
			Name:      "rows_total",
			Help:      "Total number of rows committed by the bulk loader.",
		},
	)

	LoadPartitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "bulkload",
			Name:      "partitions_total",
			Help:      "Bulk-load partitions by outcome.",
		},
		[]string{"outcome"},
	)

	StatsCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics",
			Subsystem: "stats",
			Name:      "cache_total",
			Help:      "Statistics cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analytics",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsIngested,
		EventKindsCreated,
		EventsLoaded,
		LoadPartitions,
		StatsCacheHits,
		HTTPRequestDuration,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one HTTP request observation.
func ObserveRequest(route, status string, start time.Time) {
	HTTPRequestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
}
