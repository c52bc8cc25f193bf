package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ outcomes recorded on dlqEvents.
const (
	outcomeRouted      = "routed"
	outcomeRequeued    = "requeued"
	outcomeRetry       = "retry_scheduled"
	outcomeQuarantined = "quarantined"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Activity events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Activity events whose batch could not be published.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_tracker",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming a non-empty batch to acknowledging it.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_tracker",
		Subsystem: "outbox",
		Name:      "pending_events",
		Help:      "Activity events recorded but not yet published.",
	})

	dlqEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_tracker",
		Subsystem: "dlq",
		Name:      "events_total",
		Help:      "Dead-letter transitions of activity events, by outcome and event type.",
	}, []string{"outcome", "event_type"})

	dlqBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_tracker",
		Subsystem: "dlq",
		Name:      "queued_events",
		Help:      "Dead-letter entries awaiting replay, by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, pendingGauge, dlqEvents, dlqBacklog)
}

func recordDLQ(outcome string, msg Message) {
	dlqEvents.WithLabelValues(outcome, msg.EventType).Inc()
}

// refreshDLQBacklog resets the per-topic backlog from outbox_dlq. Errors leave
// the previous values in place.
func refreshDLQBacklog(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx,
		`SELECT topic, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY topic`)
	if err != nil {
		return
	}
	defer rows.Close()

	counts := make(map[string]float64)
	for rows.Next() {
		var (
			topic string
			n     int64
		)
		if err := rows.Scan(&topic, &n); err != nil {
			return
		}
		counts[topic] = float64(n)
	}
	if rows.Err() != nil {
		return
	}

	dlqBacklog.Reset()
	for topic, n := range counts {
		dlqBacklog.WithLabelValues(topic).Set(n)
	}
}
