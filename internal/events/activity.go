// Package events defines the payloads published for activity transitions.
package events

import "time"

const (
	TypeActivityStarted   = "activity.started"
	TypeActivityCompleted = "activity.completed"
	TypeActivityAbandoned = "activity.abandoned"
)

// ActivityStarted is emitted when a user begins an activity.
type ActivityStarted struct {
	ActivityID   string    `json:"activity_id"`
	UserID       int64     `json:"user_id"`
	UserFullName string    `json:"user_full_name"`
	ChatID       int64     `json:"chat_id"`
	ChatTitle    string    `json:"chat_title"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
}

// ActivityCompleted is emitted when an activity ends and becomes billable.
type ActivityCompleted struct {
	ActivityID      string    `json:"activity_id"`
	UserID          int64     `json:"user_id"`
	UserFullName    string    `json:"user_full_name"`
	ChatID          int64     `json:"chat_id"`
	ChatTitle       string    `json:"chat_title"`
	ActivityType    string    `json:"activity_type"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	OvertimeSeconds int64     `json:"overtime_seconds"`
	Status          string    `json:"status"`
}

// ActivityAbandoned is emitted when a stale ongoing activity is swept away.
type ActivityAbandoned struct {
	ActivityID   string    `json:"activity_id"`
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
	AbandonedAt  time.Time `json:"abandoned_at"`
}
