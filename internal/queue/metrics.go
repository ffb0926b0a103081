package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsqueue"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Number of queue items by status",
		},
		[]string{"status"},
	)

	itemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_processed_total",
			Help:      "Total queue items processed by outcome",
		},
		[]string{"work_type", "outcome"},
	)

	processDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "process_duration_seconds",
			Help:      "Time one processor call took",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"work_type"},
	)

	batchesClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_claimed_total",
			Help:      "Total queue items claimed for processing. Sum of items_processed_total should match this.",
		},
		[]string{"work_type"},
	)
)

// recordItemProcessed records one processed item by outcome.
func recordItemProcessed(workType, outcome string) {
	itemsProcessed.WithLabelValues(workType, outcome).Inc()
}

// recordProcessDuration records one processor call's duration.
func recordProcessDuration(workType string, duration time.Duration) {
	processDuration.WithLabelValues(workType).Observe(duration.Seconds())
}

// recordBatchClaimed records the number of items claimed in one run.
func recordBatchClaimed(workType string, count int) {
	batchesClaimed.WithLabelValues(workType).Add(float64(count))
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *Stats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("skipped").Set(float64(stats.Skipped))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
