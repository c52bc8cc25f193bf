package api

import (
	"time"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/stats"
)

// StartActivityRequest is the payload for POST /v1/chats/{chatID}/activities.
type StartActivityRequest struct {
	UserID       int64  `json:"user_id"`
	UserFullName string `json:"user_full_name"`
	ChatTitle    string `json:"chat_title"`
	ActivityType string `json:"activity_type"`
}

// CompleteActivityRequest is the payload for POST /v1/chats/{chatID}/activities/complete.
type CompleteActivityRequest struct {
	UserID int64 `json:"user_id"`
}

// OngoingView describes an activity in progress.
type OngoingView struct {
	ActivityID     string    `json:"activity_id"`
	UserID         int64     `json:"user_id"`
	UserFullName   string    `json:"user_full_name"`
	ChatID         int64     `json:"chat_id"`
	ChatTitle      string    `json:"chat_title"`
	ActivityType   string    `json:"activity_type"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

// CompletedView describes a finished activity.
type CompletedView struct {
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

// ActivityTypeView is one row of the activity-type catalog.
type ActivityTypeView struct {
	Code               string `json:"code"`
	DisplayName        string `json:"display_name"`
	Emoji              string `json:"emoji"`
	MaxDurationSeconds int64  `json:"max_duration_seconds"`
}

// ListActivityTypesResponse lists the catalog in display order.
type ListActivityTypesResponse struct {
	Items []ActivityTypeView `json:"items"`
}

// WindowView is a half-open reporting window.
type WindowView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StatsResponse wraps an aggregation with the window it covers.
type StatsResponse struct {
	ChatID   int64        `json:"chat_id"`
	Preset   string       `json:"preset"`
	Timezone string       `json:"timezone"`
	Window   WindowView   `json:"window"`
	Result   stats.Result `json:"result"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Type    string       `json:"type"`
	Detail  string       `json:"detail"`
	Ongoing *OngoingView `json:"ongoing,omitempty"`
}

func toOngoingView(a domain.OngoingActivity, elapsed int64) OngoingView {
	return OngoingView{
		ActivityID:     a.ID,
		UserID:         a.UserID,
		UserFullName:   a.UserFullName,
		ChatID:         a.ChatID,
		ChatTitle:      a.ChatTitle,
		ActivityType:   a.ActivityType,
		StartedAt:      a.StartTime,
		ElapsedSeconds: elapsed,
	}
}

func toCompletedView(rec domain.CompletedActivity) CompletedView {
	return CompletedView{
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
	}
}
