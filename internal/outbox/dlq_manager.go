package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays failed events into the outbox and quarantines entries
// that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce processes due DLQ entries and returns how many were re-queued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, event_id, aggregate_id, event_type, topic, chat_id, partition_key, payload, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND next_retry_at <= NOW()
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries := make([]dlqEntry, 0)
	for rows.Next() {
		var entry dlqEntry
		if scanErr := rows.Scan(&entry.ID, &entry.Message.EventID, &entry.Message.AggregateID, &entry.Message.EventType,
			&entry.Message.Topic, &entry.Message.ChatID, &entry.Message.PartitionKey, &entry.Message.Payload, &entry.RetryCount); scanErr != nil {
			err = errors.Join(err, scanErr)
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		err = errors.Join(err, rowsErr)
	}

	requeued := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if ok {
			requeued++
		}
	}

	refreshDLQBacklog(ctx, m.pool)
	return requeued, err
}

func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"retry limit reached", entry.ID); err != nil {
			return false, err
		}
		recordDLQ(outcomeQuarantined, entry.Message)
		return false, tx.Commit(ctx)
	}

	if _, insertErr := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, topic, chat_id, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.Message.AggregateID, entry.Message.EventType, entry.Message.Topic,
		entry.Message.ChatID, entry.Message.PartitionKey, entry.Message.Payload,
	); insertErr != nil {
		// The failed insert aborted tx; schedule the retry in a fresh one.
		tx.Rollback(ctx)
		delay := backoffDelay(m.baseDelay, entry.RetryCount+1)
		if _, err := m.pool.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			delay, insertErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		recordDLQ(outcomeRetry, entry.Message)
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	recordDLQ(outcomeRequeued, entry.Message)
	return true, nil
}

// backoffDelay doubles base per attempt, capped at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 12 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * base
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

type dlqEntry struct {
	ID         int64
	Message    Message
	RetryCount int
}
