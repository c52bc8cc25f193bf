// Package observability records lifecycle outcomes as Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "lifecycle",
		Name:      "activities_started_total",
		Help:      "Activities started, labeled by activity type.",
	}, []string{"activity_type"})

	activitiesCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "lifecycle",
		Name:      "activities_completed_total",
		Help:      "Activities completed, labeled by activity type and status.",
	}, []string{"activity_type", "status"})

	activityDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activity_tracker",
		Subsystem: "lifecycle",
		Name:      "activity_duration_seconds",
		Help:      "Duration of completed activities.",
		Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800, 3600, 7200},
	}, []string{"activity_type"})

	rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "lifecycle",
		Name:      "rejections_total",
		Help:      "Lifecycle requests rejected, labeled by reason (validation, conflict, not_found, infrastructure).",
	}, []string{"reason"})

	staleRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "janitor",
		Name:      "stale_activities_removed_total",
		Help:      "Ongoing activities removed as abandoned by the janitor.",
	})

	janitorLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_tracker",
		Subsystem: "janitor",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful janitor pass.",
	})
)

func init() {
	prometheus.MustRegister(activitiesStarted, activitiesCompleted, activityDuration, rejections, staleRemoved, janitorLastRun)
}

// RecordStarted counts a started activity.
func RecordStarted(activityType string) {
	activitiesStarted.WithLabelValues(activityType).Inc()
}

// RecordCompleted counts a completed activity and observes its duration.
func RecordCompleted(activityType, status string, durationSeconds int64) {
	activitiesCompleted.WithLabelValues(activityType, status).Inc()
	activityDuration.WithLabelValues(activityType).Observe(float64(durationSeconds))
}

// RecordRejected counts a rejected lifecycle request.
func RecordRejected(reason string) {
	rejections.WithLabelValues(reason).Inc()
}

// RecordJanitorRun updates the janitor watermark and removal counter.
func RecordJanitorRun(ts time.Time, removed int) {
	if removed > 0 {
		staleRemoved.Add(float64(removed))
	}
	if ts.IsZero() {
		return
	}
	janitorLastRun.Set(float64(ts.Unix()))
}
