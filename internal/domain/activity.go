package domain

import "time"

// Status is the outcome recorded on a completed activity.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusOvertime  Status = "overtime"
)

// OngoingActivity is the single in-progress activity for a (user, chat) pair.
type OngoingActivity struct {
	ID           string
	UserID       int64
	UserFullName string
	ChatID       int64
	ChatTitle    string
	ActivityType string
	StartTime    time.Time
}

// ElapsedSeconds returns whole seconds since StartTime, never negative.
func (o OngoingActivity) ElapsedSeconds(now time.Time) int64 {
	if now.Before(o.StartTime) {
		return 0
	}
	return int64(now.Sub(o.StartTime) / time.Second)
}

// CompletedActivity is the immutable record produced when an activity ends.
type CompletedActivity struct {
	ID              string
	UserID          int64
	UserFullName    string
	ChatID          int64
	ChatTitle       string
	ActivityType    string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	OvertimeSeconds int64
	Status          Status
}

// Overtime returns the seconds by which duration exceeds the budget and the matching status.
func Overtime(durationSeconds, maxDurationSeconds int64) (int64, Status) {
	over := durationSeconds - maxDurationSeconds
	if over <= 0 {
		return 0, StatusCompleted
	}
	return over, StatusOvertime
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration is the length of the window.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
