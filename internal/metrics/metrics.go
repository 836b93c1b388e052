// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncUploadsTotal counts records uploaded to the remote store.
	SyncUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_uploads_total",
			Help: "Total records uploaded to the remote store",
		},
	)

	// SyncDownloadsTotal counts remote records ingested locally.
	SyncDownloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_downloads_total",
			Help: "Total remote records ingested into the local store",
		},
	)

	// SyncDeletesTotal counts local deletions driven by remote absence.
	SyncDeletesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_remote_deletes_total",
			Help: "Total local records deleted because they vanished remotely",
		},
	)

	// SyncErrorsTotal counts per-record sync errors by stage.
	SyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_errors_total",
			Help: "Total sync errors by stage",
		},
		[]string{"stage"},
	)

	// DecryptRetriesTotal counts retry-after-rotation outcomes.
	DecryptRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_decrypt_retries_total",
			Help: "Decrypt retry outcomes after a key change",
		},
		[]string{"outcome"},
	)

	// FullSyncDuration tracks full sync pass duration.
	FullSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatsync_full_sync_duration_seconds",
			Help:    "Full sync pass duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// RecordSyncError increments the error counter for stage.
func RecordSyncError(stage string) {
	SyncErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordDecryptRetry increments the retry counter for outcome
// ("recovered", "failed", "corrupted").
func RecordDecryptRetry(outcome string) {
	DecryptRetriesTotal.WithLabelValues(outcome).Inc()
}
