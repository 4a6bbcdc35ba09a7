// Package metrics exposes Prometheus counters mirroring the data-quality
// report of pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_records_parsed_total",
			Help: "Total number of records emitted",
		},
		[]string{"format"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_records_skipped_total",
			Help: "Total number of malformed entries skipped",
		},
		[]string{"format"},
	)

	RecordsTruncated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_records_truncated_total",
			Help: "Total number of truncated trailing frames dropped",
		},
		[]string{"format"},
	)

	TimestampsUnnormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_timestamps_unnormalized_total",
			Help: "Total number of timestamp values kept in their original form",
		},
		[]string{"format"},
	)

	Detections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_detections_total",
			Help: "Total number of sources whose format was detected",
		},
		[]string{"format", "stage"},
	)

	DetectionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsniff_detection_failures_total",
			Help: "Total number of sources whose format could not be detected",
		},
	)

	ChunksParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_chunks_parsed_total",
			Help: "Total number of chunks parsed",
		},
		[]string{"format"},
	)

	ForcedSplits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsniff_forced_splits_total",
			Help: "Total number of entries split at the entry size limit",
		},
		[]string{"format"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsniff_source_duration_seconds",
			Help:    "Time taken to process a source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)
)
