// Package memory provides an in-process Ledger for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
)

type key struct {
	userID int64
	chatID int64
}

// Ledger keeps activities in maps guarded by a single mutex.
type Ledger struct {
	mu        sync.RWMutex
	ongoing   map[key]domain.OngoingActivity
	completed []domain.CompletedActivity
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{ongoing: make(map[key]domain.OngoingActivity)}
}

// FindOngoing implements domain.Ledger.
func (l *Ledger) FindOngoing(_ context.Context, userID, chatID int64) (*domain.OngoingActivity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	activity, ok := l.ongoing[key{userID, chatID}]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// InsertOngoingIfAbsent implements domain.Ledger.
func (l *Ledger) InsertOngoingIfAbsent(_ context.Context, activity domain.OngoingActivity) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{activity.UserID, activity.ChatID}
	if _, exists := l.ongoing[k]; exists {
		return false, nil
	}
	l.ongoing[k] = activity
	return true, nil
}

// MoveOngoingToCompleted implements domain.Ledger.
func (l *Ledger) MoveOngoingToCompleted(_ context.Context, userID, chatID int64, record domain.CompletedActivity) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{userID, chatID}
	current, ok := l.ongoing[k]
	if !ok || !current.StartTime.Equal(record.StartTime) {
		return false, nil
	}
	delete(l.ongoing, k)
	l.completed = append(l.completed, record)
	return true, nil
}

// QueryCompleted implements domain.Ledger.
func (l *Ledger) QueryCompleted(_ context.Context, chatID int64, window domain.TimeWindow) ([]domain.CompletedActivity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.CompletedActivity, 0)
	for _, record := range l.completed {
		if record.ChatID == chatID && window.Contains(record.StartTime) {
			out = append(out, record)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// ListOngoingOlderThan implements domain.Ledger.
func (l *Ledger) ListOngoingOlderThan(_ context.Context, cutoff time.Time) ([]domain.OngoingActivity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.OngoingActivity, 0)
	for _, activity := range l.ongoing {
		if activity.StartTime.Before(cutoff) {
			out = append(out, activity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// RemoveOngoingOlderThan implements domain.Ledger.
func (l *Ledger) RemoveOngoingOlderThan(_ context.Context, userID, chatID int64, cutoff time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{userID, chatID}
	current, ok := l.ongoing[k]
	if !ok || !current.StartTime.Before(cutoff) {
		return false, nil
	}
	delete(l.ongoing, k)
	return true, nil
}

// OngoingCount returns the number of in-progress activities.
func (l *Ledger) OngoingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ongoing)
}

// Seed appends completed records directly, bypassing the lifecycle.
func (l *Ledger) Seed(records ...domain.CompletedActivity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, records...)
}
