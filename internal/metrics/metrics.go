// Package metrics exposes Prometheus collectors for the chat crawler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcrawler_sessions_total",
			Help: "Total number of capture sessions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	epochsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcrawler_epochs_total",
			Help: "Total number of pause-scan-resume cycles completed.",
		},
	)

	messagesObservedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcrawler_messages_observed_total",
			Help: "Total number of rendered chat elements read, duplicates included.",
		},
	)

	messagesUniqueTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcrawler_messages_unique_total",
			Help: "Total number of chat records that were new to their session.",
		},
	)

	parseFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcrawler_parse_failures_total",
			Help: "Total number of rendered chat elements that failed to parse.",
		},
	)

	adjustmentFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcrawler_adjustment_failures_total",
			Help: "Total number of tolerated presentation adjustment failures, labeled by action.",
		},
		[]string{"action"},
	)

	scanDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatcrawler_scan_duration_seconds",
			Help:    "Histogram of time spent enumerating and parsing chat elements per epoch.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcrawler_jobs_total",
			Help: "Total number of jobs finished, labeled by status.",
		},
		[]string{"status"},
	)

	jobAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatcrawler_job_attempts",
			Help:    "Histogram of capture attempts used per job.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	)

	trackedWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcrawler_tracked_workers",
			Help: "Number of workers currently tracked by the dispatcher.",
		},
	)

	workersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcrawler_workers_total",
			Help: "Total number of workers that exited, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcrawler_http_requests_total",
			Help: "Total number of metrics server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// ObserveSession records a finished capture session ("closed" or "failed").
func ObserveSession(outcome string) {
	sessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEpoch records one completed scan of rendered chat elements.
func ObserveEpoch(observed, added int, scan time.Duration) {
	epochsTotal.Inc()
	messagesObservedTotal.Add(float64(observed))
	messagesUniqueTotal.Add(float64(added))
	scanDurationSeconds.Observe(scan.Seconds())
}

// ObserveParseFailure counts one chat element that failed to parse.
func ObserveParseFailure() {
	parseFailuresTotal.Inc()
}

// ObserveAdjustmentFailure counts a tolerated adjustment failure.
func ObserveAdjustmentFailure(action string) {
	adjustmentFailuresTotal.WithLabelValues(action).Inc()
}

// ObserveJob records a finished job and the number of attempts it used.
func ObserveJob(status string, attempts int) {
	jobsTotal.WithLabelValues(status).Inc()
	if attempts > 0 {
		jobAttempts.Observe(float64(attempts))
	}
}

// SetTrackedWorkers publishes the size of the dispatcher registry.
func SetTrackedWorkers(n int) {
	trackedWorkers.Set(float64(n))
}

// ObserveWorker records a worker exit ("succeeded", "failed" or "launch_failed").
func ObserveWorker(outcome string) {
	workersTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the metrics server request counter.
func ObserveHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
