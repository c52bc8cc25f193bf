// Package domain implements the activity lifecycle: starting, completing and
// expiring the single in-progress activity of each user in each chat.
package domain

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
)

// DefaultStaleAfter is the age after which an ongoing activity is abandoned.
const DefaultStaleAfter = 24 * time.Hour

// ActivityTypes resolves activity-type metadata.
type ActivityTypes interface {
	Get(code string) (catalog.ActivityType, bool)
}

// Lifecycle orchestrates activity state transitions against a Ledger.
type Lifecycle struct {
	ledger Ledger
	types  ActivityTypes
	newID  func() string
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(ledger Ledger, types ActivityTypes) *Lifecycle {
	return &Lifecycle{ledger: ledger, types: types, newID: uuid.NewString}
}

// StartInput captures the caller's request to begin an activity.
type StartInput struct {
	UserID       int64
	UserFullName string
	ChatID       int64
	ChatTitle    string
	ActivityType string
	Now          time.Time
}

// Start begins an activity. It fails with *ConflictError when the user already
// has one running in the chat.
func (l *Lifecycle) Start(ctx context.Context, in StartInput) (*OngoingActivity, error) {
	if in.UserID == 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "must be set"}
	}
	if in.ChatID == 0 {
		return nil, &ValidationError{Field: "chat_id", Reason: "must be set"}
	}
	code := strings.TrimSpace(in.ActivityType)
	if _, ok := l.types.Get(code); !ok {
		return nil, &ValidationError{Field: "activity_type", Reason: "unknown activity type " + strconv.Quote(code)}
	}

	now := normalize(in.Now)
	existing, err := l.ledger.FindOngoing(ctx, in.UserID, in.ChatID)
	if err != nil {
		return nil, infra("find ongoing", err)
	}
	if existing != nil {
		return nil, conflict(*existing, now)
	}

	activity := OngoingActivity{
		ID:           l.newID(),
		UserID:       in.UserID,
		UserFullName: in.UserFullName,
		ChatID:       in.ChatID,
		ChatTitle:    in.ChatTitle,
		ActivityType: code,
		StartTime:    now,
	}
	for attempt := 1; ; attempt++ {
		inserted, err := l.ledger.InsertOngoingIfAbsent(ctx, activity)
		if err != nil {
			return nil, infra("insert ongoing", err)
		}
		if inserted {
			return &activity, nil
		}

		// Lost a race with a concurrent start for the same key.
		existing, err := l.ledger.FindOngoing(ctx, in.UserID, in.ChatID)
		if err != nil {
			return nil, infra("find ongoing", err)
		}
		if existing != nil {
			return nil, conflict(*existing, now)
		}
		// The winner already finished; try the free slot once more.
		if attempt == maxStartAttempts {
			return nil, &ConflictError{}
		}
	}
}

const maxStartAttempts = 2

// Complete ends the user's ongoing activity and returns the completed record,
// which keeps the ongoing activity's ID.
// A completion time before the start time is rejected as a validation error.
func (l *Lifecycle) Complete(ctx context.Context, userID, chatID int64, now time.Time) (*CompletedActivity, error) {
	ongoing, err := l.ledger.FindOngoing(ctx, userID, chatID)
	if err != nil {
		return nil, infra("find ongoing", err)
	}
	if ongoing == nil {
		return nil, &NotFoundError{UserID: userID, ChatID: chatID}
	}

	end := normalize(now)
	if end.Before(ongoing.StartTime) {
		return nil, &ValidationError{Field: "end_time", Reason: "clock skew: completion precedes start"}
	}

	duration := int64(end.Sub(ongoing.StartTime) / time.Second)
	var overtime int64
	status := StatusCompleted
	// A type removed from the table after the activity started has no budget.
	if cfg, ok := l.types.Get(ongoing.ActivityType); ok {
		overtime, status = Overtime(duration, cfg.MaxDurationSeconds)
	}

	record := CompletedActivity{
		ID:              ongoing.ID,
		UserID:          ongoing.UserID,
		UserFullName:    ongoing.UserFullName,
		ChatID:          ongoing.ChatID,
		ChatTitle:       ongoing.ChatTitle,
		ActivityType:    ongoing.ActivityType,
		StartTime:       ongoing.StartTime,
		EndTime:         end,
		DurationSeconds: duration,
		OvertimeSeconds: overtime,
		Status:          status,
	}
	moved, err := l.ledger.MoveOngoingToCompleted(ctx, userID, chatID, record)
	if err != nil {
		return nil, infra("move ongoing to completed", err)
	}
	if !moved {
		return nil, &NotFoundError{UserID: userID, ChatID: chatID}
	}
	return &record, nil
}

// OngoingView pairs an ongoing activity with its elapsed time.
type OngoingView struct {
	Activity       OngoingActivity
	ElapsedSeconds int64
}

// Ongoing returns the user's current activity in the chat.
func (l *Lifecycle) Ongoing(ctx context.Context, userID, chatID int64, now time.Time) (*OngoingView, error) {
	ongoing, err := l.ledger.FindOngoing(ctx, userID, chatID)
	if err != nil {
		return nil, infra("find ongoing", err)
	}
	if ongoing == nil {
		return nil, &NotFoundError{UserID: userID, ChatID: chatID}
	}
	return &OngoingView{Activity: *ongoing, ElapsedSeconds: ongoing.ElapsedSeconds(normalize(now))}, nil
}

// CleanupStale removes ongoing activities older than maxAge without producing
// completed records and returns how many were removed. A non-positive maxAge
// means DefaultStaleAfter.
func (l *Lifecycle) CleanupStale(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	cutoff := normalize(now).Add(-maxAge)
	stale, err := l.ledger.ListOngoingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, infra("list stale ongoing", err)
	}

	removed := 0
	for _, activity := range stale {
		ok, err := l.ledger.RemoveOngoingOlderThan(ctx, activity.UserID, activity.ChatID, cutoff)
		if err != nil {
			return removed, infra("remove stale ongoing", err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func conflict(existing OngoingActivity, now time.Time) *ConflictError {
	return &ConflictError{Existing: existing, ElapsedSeconds: existing.ElapsedSeconds(now)}
}

// normalize keeps instants at microsecond precision in UTC so every ledger
// round-trips them exactly.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
