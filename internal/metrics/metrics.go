// Package metrics provides Prometheus metrics for publish runs.
//
// squirrelctl is a short-lived process, so collectors live on a private
// registry that is written out as a node_exporter textfile when a run ends.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	// Publish metrics
	publishTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squirrelctl_publish_total",
			Help: "Total publish runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	publishDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squirrelctl_publish_duration_seconds",
			Help:    "Publish run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squirrelctl_stage_duration_seconds",
			Help:    "Duration of each publish stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Package metrics
	packageEntries = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "squirrelctl_package_entries",
			Help: "Number of files in the last built package",
		},
	)

	packageBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "squirrelctl_package_bytes",
			Help: "Size of the last built package archive",
		},
	)

	// Upload metrics
	uploadBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squirrelctl_upload_bytes_total",
			Help: "Total bytes uploaded per destination",
		},
		[]string{"destination"},
	)

	uploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squirrelctl_uploads_total",
			Help: "Total artifact uploads per destination and status",
		},
		[]string{"destination", "status"},
	)

	uploadDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squirrelctl_upload_duration_seconds",
			Help:    "Artifact upload duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	// S3 metrics
	s3OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squirrelctl_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squirrelctl_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Registry returns the registry every collector is registered on.
func Registry() *prometheus.Registry {
	return registry
}

// RecordPublish records a finished publish run.
func RecordPublish(mode, outcome string, duration time.Duration) {
	publishTotal.WithLabelValues(mode, outcome).Inc()
	publishDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStage records how long a publish stage took.
func RecordStage(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetPackage records the size of the last built package.
func SetPackage(entries int, bytes int64) {
	packageEntries.Set(float64(entries))
	packageBytes.Set(float64(bytes))
}

// RecordUpload records one artifact transfer.
func RecordUpload(destination string, bytes int64, success bool, duration time.Duration) {
	if success {
		uploadBytes.WithLabelValues(destination).Add(float64(bytes))
	}
	uploadsTotal.WithLabelValues(destination, status(success)).Inc()
	uploadDuration.WithLabelValues(destination).Observe(duration.Seconds())
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, status(success)).Inc()
}

// WriteTextfile writes every collected metric to path in the text
// exposition format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
