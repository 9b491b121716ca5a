package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savedb_backups_started_total",
			Help: "Total number of backup runs started",
		},
	)

	backupsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savedb_backups_completed_total",
			Help: "Total number of backup runs that completed successfully",
		},
	)

	backupsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savedb_backups_failed_total",
			Help: "Total number of failed backup runs",
		},
		[]string{"kind"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "savedb_backup_stage_duration_seconds",
			Help:    "Duration of individual backup pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"stage"},
	)

	artifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "savedb_backup_artifact_bytes",
			Help:    "Size of produced backup artifacts",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 4, 10),
		},
	)
)
