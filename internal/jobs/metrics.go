package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsqueue"

var (
	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total job attempts finished by outcome",
		},
		[]string{"job_type", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "generate_duration_seconds",
			Help:      "Time one successful generator call took",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job_type"},
	)
)

// recordJobFinished records one finished job attempt by outcome.
func recordJobFinished(jobType, outcome string) {
	jobsFinished.WithLabelValues(jobType, outcome).Inc()
}

// recordJobDuration records a successful generator call's duration.
func recordJobDuration(jobType string, duration time.Duration) {
	jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}
