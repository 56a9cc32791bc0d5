package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job lifecycle metrics
var (
	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_jobs_submitted_total",
			Help: "Total number of cache job submissions, including coalesced and cache-hit ones",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"outcome"}, // "completed", "failed", "canceled"
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_jobs_active",
			Help: "Number of jobs currently holding a concurrency permit",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_job_duration_seconds",
			Help:    "Wall-clock duration of finished transcode jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"outcome"},
	)
)

// Dedup and cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_hits_total",
			Help: "Submissions answered by an existing finished rendition",
		},
	)

	CoalescedSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_coalesced_total",
			Help: "Submissions joined to an already running equivalent job",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_size_bytes",
			Help: "Total size of finished renditions tracked by the manifest",
		},
	)

	ManifestEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_manifest_entries",
			Help: "Number of finished renditions tracked by the manifest",
		},
	)
)

// Filesystem metrics
var (
	PublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_publish_retries_total",
			Help: "Transient rename failures retried while publishing a rendition",
		},
	)
)
