package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
)

// Ledger implements domain.Ledger on SQLite.
type Ledger struct {
	db *DB
}

// NewLedger creates a Ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

const ongoingColumns = `id, user_id, chat_id, user_full_name, chat_title, activity_type, started_at`

const completedColumns = `id, user_id, chat_id, user_full_name, chat_title, activity_type,
	started_at, ended_at, duration_seconds, overtime_seconds, status`

// FindOngoing implements domain.Ledger.
func (l *Ledger) FindOngoing(ctx context.Context, userID, chatID int64) (*domain.OngoingActivity, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+ongoingColumns+` FROM ongoing_activities WHERE user_id = ? AND chat_id = ?`,
		userID, chatID)

	activity, err := scanOngoing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ongoing activity: %w", err)
	}
	return &activity, nil
}

// InsertOngoingIfAbsent implements domain.Ledger.
func (l *Ledger) InsertOngoingIfAbsent(ctx context.Context, a domain.OngoingActivity) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`INSERT INTO ongoing_activities (`+ongoingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, chat_id) DO NOTHING`,
		a.ID, a.UserID, a.ChatID, a.UserFullName, a.ChatTitle, a.ActivityType, toMicros(a.StartTime))
	if err != nil {
		return false, fmt.Errorf("failed to insert ongoing activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// MoveOngoingToCompleted implements domain.Ledger.
func (l *Ledger) MoveOngoingToCompleted(ctx context.Context, userID, chatID int64, rec domain.CompletedActivity) (moved bool, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if !moved {
			tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM ongoing_activities WHERE user_id = ? AND chat_id = ? AND started_at = ?`,
		userID, chatID, toMicros(rec.StartTime))
	if err != nil {
		return false, fmt.Errorf("failed to delete ongoing activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO completed_activities (`+completedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ChatID, rec.UserFullName, rec.ChatTitle, rec.ActivityType,
		toMicros(rec.StartTime), toMicros(rec.EndTime), rec.DurationSeconds, rec.OvertimeSeconds, string(rec.Status),
	); err != nil {
		return false, fmt.Errorf("failed to insert completed activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit move: %w", err)
	}
	return true, nil
}

// QueryCompleted implements domain.Ledger.
func (l *Ledger) QueryCompleted(ctx context.Context, chatID int64, window domain.TimeWindow) ([]domain.CompletedActivity, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+completedColumns+` FROM completed_activities
		WHERE chat_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at, id`,
		chatID, toMicros(window.Start), toMicros(window.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed activities: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CompletedActivity, 0)
	for rows.Next() {
		var rec domain.CompletedActivity
		var started, ended int64
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &rec.UserFullName, &rec.ChatTitle, &rec.ActivityType,
			&started, &ended, &rec.DurationSeconds, &rec.OvertimeSeconds, &status); err != nil {
			return nil, fmt.Errorf("failed to scan completed activity: %w", err)
		}
		rec.StartTime = fromMicros(started)
		rec.EndTime = fromMicros(ended)
		rec.Status = domain.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed activities: %w", err)
	}
	return out, nil
}

// ListOngoingOlderThan implements domain.Ledger.
func (l *Ledger) ListOngoingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.OngoingActivity, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+ongoingColumns+` FROM ongoing_activities WHERE started_at < ? ORDER BY started_at`,
		toMicros(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list ongoing activities: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OngoingActivity, 0)
	for rows.Next() {
		activity, err := scanOngoing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ongoing activity: %w", err)
		}
		out = append(out, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ongoing activities: %w", err)
	}
	return out, nil
}

// RemoveOngoingOlderThan implements domain.Ledger.
func (l *Ledger) RemoveOngoingOlderThan(ctx context.Context, userID, chatID int64, cutoff time.Time) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM ongoing_activities WHERE user_id = ? AND chat_id = ? AND started_at < ?`,
		userID, chatID, toMicros(cutoff))
	if err != nil {
		return false, fmt.Errorf("failed to remove ongoing activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOngoing(s scanner) (domain.OngoingActivity, error) {
	var a domain.OngoingActivity
	var started int64
	if err := s.Scan(&a.ID, &a.UserID, &a.ChatID, &a.UserFullName, &a.ChatTitle, &a.ActivityType, &started); err != nil {
		return domain.OngoingActivity{}, err
	}
	a.StartTime = fromMicros(started)
	return a, nil
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
