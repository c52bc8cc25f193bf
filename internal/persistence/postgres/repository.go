// Package postgres provides the Postgres-backed activity ledger. Every state
// transition records its outbox event inside the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/events"
)

// Ledger implements domain.Ledger on Postgres.
type Ledger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, now: time.Now}
}

const ongoingColumns = `activity_id, user_id, chat_id, user_full_name, chat_title, activity_type, started_at`

const completedColumns = `activity_id, user_id, chat_id, user_full_name, chat_title, activity_type,
        started_at, ended_at, duration_seconds, overtime_seconds, status`

// FindOngoing implements domain.Ledger.
func (r *Ledger) FindOngoing(ctx context.Context, userID, chatID int64) (*domain.OngoingActivity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ongoingColumns+` FROM ongoing_activities WHERE user_id=$1 AND chat_id=$2`,
		userID, chatID)
	activity, err := scanOngoing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// InsertOngoingIfAbsent implements domain.Ledger.
func (r *Ledger) InsertOngoingIfAbsent(ctx context.Context, a domain.OngoingActivity) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO ongoing_activities (`+ongoingColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (user_id, chat_id) DO NOTHING`,
		a.ID, a.UserID, a.ChatID, a.UserFullName, a.ChatTitle, a.ActivityType, a.StartTime)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertOutbox(ctx, tx, events.TypeActivityStarted, a.ID, a.ChatID, a.UserID, events.ActivityStarted{
		ActivityID:   a.ID,
		UserID:       a.UserID,
		UserFullName: a.UserFullName,
		ChatID:       a.ChatID,
		ChatTitle:    a.ChatTitle,
		ActivityType: a.ActivityType,
		StartedAt:    a.StartTime,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// MoveOngoingToCompleted implements domain.Ledger.
func (r *Ledger) MoveOngoingToCompleted(ctx context.Context, userID, chatID int64, rec domain.CompletedActivity) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM ongoing_activities WHERE user_id=$1 AND chat_id=$2 AND started_at=$3`,
		userID, chatID, rec.StartTime)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO completed_activities (`+completedColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.UserID, rec.ChatID, rec.UserFullName, rec.ChatTitle, rec.ActivityType,
		rec.StartTime, rec.EndTime, rec.DurationSeconds, rec.OvertimeSeconds, string(rec.Status),
	); err != nil {
		return false, err
	}

	if err := insertOutbox(ctx, tx, events.TypeActivityCompleted, rec.ID, rec.ChatID, rec.UserID, events.ActivityCompleted{
		ActivityID:      rec.ID,
		UserID:          rec.UserID,
		UserFullName:    rec.UserFullName,
		ChatID:          rec.ChatID,
		ChatTitle:       rec.ChatTitle,
		ActivityType:    rec.ActivityType,
		StartedAt:       rec.StartTime,
		EndedAt:         rec.EndTime,
		DurationSeconds: rec.DurationSeconds,
		OvertimeSeconds: rec.OvertimeSeconds,
		Status:          string(rec.Status),
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// QueryCompleted implements domain.Ledger.
func (r *Ledger) QueryCompleted(ctx context.Context, chatID int64, window domain.TimeWindow) ([]domain.CompletedActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+completedColumns+` FROM completed_activities
        WHERE chat_id=$1 AND started_at >= $2 AND started_at < $3
        ORDER BY started_at, activity_id`,
		chatID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CompletedActivity, 0)
	for rows.Next() {
		var rec domain.CompletedActivity
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &rec.UserFullName, &rec.ChatTitle, &rec.ActivityType,
			&rec.StartTime, &rec.EndTime, &rec.DurationSeconds, &rec.OvertimeSeconds, &status); err != nil {
			return nil, err
		}
		rec.StartTime = rec.StartTime.UTC()
		rec.EndTime = rec.EndTime.UTC()
		rec.Status = domain.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOngoingOlderThan implements domain.Ledger.
func (r *Ledger) ListOngoingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.OngoingActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ongoingColumns+` FROM ongoing_activities WHERE started_at < $1 ORDER BY started_at`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OngoingActivity, 0)
	for rows.Next() {
		activity, err := scanOngoing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

// RemoveOngoingOlderThan implements domain.Ledger.
func (r *Ledger) RemoveOngoingOlderThan(ctx context.Context, userID, chatID int64, cutoff time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`DELETE FROM ongoing_activities WHERE user_id=$1 AND chat_id=$2 AND started_at < $3
        RETURNING `+ongoingColumns,
		userID, chatID, cutoff)
	activity, err := scanOngoing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := insertOutbox(ctx, tx, events.TypeActivityAbandoned, activity.ID, activity.ChatID, activity.UserID, events.ActivityAbandoned{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		ChatID:       activity.ChatID,
		ActivityType: activity.ActivityType,
		StartedAt:    activity.StartTime,
		AbandonedAt:  r.now().UTC(),
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func scanOngoing(row pgx.Row) (domain.OngoingActivity, error) {
	var a domain.OngoingActivity
	if err := row.Scan(&a.ID, &a.UserID, &a.ChatID, &a.UserFullName, &a.ChatTitle, &a.ActivityType, &a.StartTime); err != nil {
		return domain.OngoingActivity{}, err
	}
	a.StartTime = a.StartTime.UTC()
	return a, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, chatID, userID int64, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_id, event_type, topic, chat_id, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, stmt,
		aggregateID,
		eventType,
		meta.Topic,
		chatID,
		fmt.Sprintf("%d:%d", chatID, userID),
		body,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityStarted:   {Topic: "activity_lifecycle"},
	events.TypeActivityCompleted: {Topic: "activity_completed"},
	events.TypeActivityAbandoned: {Topic: "activity_lifecycle"},
}
