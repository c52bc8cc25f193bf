// Package timerange turns named report periods into concrete time windows.
package timerange

import (
	"strconv"
	"time"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
)

// WeekStart is the first day of a reporting week.
const WeekStart = time.Monday

// Preset names a reporting period relative to a reference instant.
type Preset string

const (
	Today     Preset = "today"
	Yesterday Preset = "yesterday"
	ThisWeek  Preset = "this_week"
	LastWeek  Preset = "last_week"
	ThisMonth Preset = "this_month"
	LastMonth Preset = "last_month"
)

// Presets lists every supported preset.
func Presets() []Preset {
	return []Preset{Today, Yesterday, ThisWeek, LastWeek, ThisMonth, LastMonth}
}

// Resolve returns the [start, end) window for preset around ref, computed in loc.
// A nil loc means UTC.
func Resolve(preset string, ref time.Time, loc *time.Location) (domain.TimeWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := ref.In(loc)
	day := startOfDay(local)

	switch Preset(preset) {
	case Today:
		return window(day, day.AddDate(0, 0, 1)), nil
	case Yesterday:
		return window(day.AddDate(0, 0, -1), day), nil
	case ThisWeek:
		start := startOfWeek(day)
		return window(start, start.AddDate(0, 0, 7)), nil
	case LastWeek:
		start := startOfWeek(day)
		return window(start.AddDate(0, 0, -7), start), nil
	case ThisMonth:
		start := startOfMonth(day)
		return window(start, start.AddDate(0, 1, 0)), nil
	case LastMonth:
		start := startOfMonth(day)
		return window(start.AddDate(0, -1, 0), start), nil
	default:
		return domain.TimeWindow{}, &domain.ValidationError{
			Field:  "preset",
			Reason: "unknown preset " + strconv.Quote(preset),
		}
	}
}

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &domain.ValidationError{Field: "timezone", Reason: err.Error()}
	}
	return loc, nil
}

func window(start, end time.Time) domain.TimeWindow {
	return domain.TimeWindow{Start: start, End: end}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) - int(WeekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(day time.Time) time.Time {
	y, m, _ := day.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, day.Location())
}
