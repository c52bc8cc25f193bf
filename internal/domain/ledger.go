package domain

import (
	"context"
	"time"
)

// Ledger is the durable store of ongoing and completed activities.
//
// Implementations must make InsertOngoingIfAbsent, MoveOngoingToCompleted and
// RemoveOngoingOlderThan atomic with respect to each other.
type Ledger interface {
	// FindOngoing returns nil, nil when the key has no ongoing activity.
	FindOngoing(ctx context.Context, userID, chatID int64) (*OngoingActivity, error)
	// InsertOngoingIfAbsent reports false when the key already has an ongoing activity.
	InsertOngoingIfAbsent(ctx context.Context, activity OngoingActivity) (bool, error)
	// MoveOngoingToCompleted deletes the ongoing row whose start time equals
	// record.StartTime and inserts record in one step. It reports false when no
	// such row exists.
	MoveOngoingToCompleted(ctx context.Context, userID, chatID int64, record CompletedActivity) (bool, error)
	// QueryCompleted returns the chat's records with StartTime inside window,
	// ordered by StartTime then ID.
	QueryCompleted(ctx context.Context, chatID int64, window TimeWindow) ([]CompletedActivity, error)
	// ListOngoingOlderThan returns ongoing activities started before cutoff.
	ListOngoingOlderThan(ctx context.Context, cutoff time.Time) ([]OngoingActivity, error)
	// RemoveOngoingOlderThan deletes the key's ongoing activity only if it
	// still started before cutoff.
	RemoveOngoingOlderThan(ctx context.Context, userID, chatID int64, cutoff time.Time) (bool, error)
}
