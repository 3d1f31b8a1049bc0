// Package metrics holds the Prometheus collectors for sync runs and the
// reference server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PushEntries counts outbox entries processed by the push worker,
	// labelled by table, operation and outcome (synced/failed).
	PushEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_push_entries_total",
		Help: "Total number of outbox entries processed by the push worker",
	}, []string{"table", "operation", "status"})

	// PullRecords counts pulled records by table and merge outcome.
	PullRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_pull_records_total",
		Help: "Total number of remote records merged by the pull engine",
	}, []string{"table", "outcome"})

	// PullErrors counts tables whose pull failed.
	PullErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_pull_errors_total",
		Help: "Total number of failed table pulls",
	}, []string{"table"})

	// RunDuration measures push and pull runs.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldsync_run_duration_seconds",
		Help:    "Duration of push and pull runs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// OutboxBacklog is the number of entries still eligible for push.
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_outbox_backlog",
		Help: "Current number of outbox entries below the retry ceiling",
	})

	// OutboxQuarantined is the number of entries that reached the retry ceiling.
	// Growth here needs manual reset or purge.
	OutboxQuarantined = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_outbox_quarantined",
		Help: "Current number of outbox entries at or above the retry ceiling",
	})

	// CheckpointTimestamp is the pull checkpoint per table as Unix seconds.
	CheckpointTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldsync_checkpoint_timestamp_seconds",
		Help: "Pull checkpoint per table as Unix time",
	}, []string{"table"})

	// HTTPRequests counts reference server requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "route", "status"})
)
