// Package report renders an aggregation as plain-text tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/stats"
)

const timeLayout = "2006-01-02 15:04"

// Render writes the summary, the per-user table, the per-type table and,
// when present, the hourly and daily breakdowns.
func Render(w io.Writer, title string, window domain.TimeWindow, result stats.Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "%s - %s (%s)\n\n", window.Start.Format(timeLayout), window.End.Format(timeLayout), window.Start.Location())

	s := result.Summary
	summary := newTable()
	summary.AppendRows([]table.Row{
		{"Activities", s.TotalActivities},
		{"Users", s.UniqueUserCount},
		{"Activity types", s.UniqueActivityTypeCount},
		{"Total time", FormatDuration(s.TotalDurationSeconds)},
		{"Overtime", FormatDuration(s.TotalOvertimeSeconds)},
		{"Overtime count", s.TotalOvertimeCount},
		{"Efficiency", fmt.Sprintf("%d%%", s.Efficiency)},
	})
	b.WriteString(summary.Render())
	b.WriteString("\n\n")

	if s.TotalActivities == 0 {
		b.WriteString("No activities recorded.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	users := newTable()
	users.AppendHeader(table.Row{"User", "Activities", "Total", "Overtime", "OT count", "Efficiency", "Most used"})
	for _, key := range result.UserOrder {
		u := result.ByUser[key]
		users.AppendRow(table.Row{
			key,
			u.TotalActivities,
			FormatDuration(u.TotalDurationSeconds),
			FormatDuration(u.TotalOvertimeSeconds),
			u.OvertimeCount,
			fmt.Sprintf("%d%%", u.Efficiency),
			typeLabel(result, u.MostUsedActivityType),
		})
	}
	b.WriteString(users.Render())
	b.WriteString("\n\n")

	types := newTable()
	types.AppendHeader(table.Row{"Type", "Count", "Users", "Total", "Average", "Overtime", "OT count"})
	for _, code := range result.ActivityTypeOrder {
		t := result.ByActivityType[code]
		types.AppendRow(table.Row{
			typeLabel(result, code),
			t.TotalCount,
			t.UniqueUserCount,
			FormatDuration(t.TotalDurationSeconds),
			FormatDuration(t.AverageDurationSeconds),
			FormatDuration(t.TotalOvertimeSeconds),
			t.OvertimeCount,
		})
	}
	b.WriteString(types.Render())
	b.WriteString("\n")

	if result.Hourly != nil {
		hours := newTable()
		header := table.Row{"Hour"}
		counts := table.Row{"Activities"}
		for hour, n := range result.Hourly {
			header = append(header, strconv.Itoa(hour))
			counts = append(counts, n)
		}
		hours.AppendHeader(header)
		hours.AppendRow(counts)
		b.WriteString("\n")
		b.WriteString(hours.Render())
		b.WriteString("\n")
	}

	if len(result.DayOrder) > 0 {
		days := newTable()
		days.AppendHeader(table.Row{"Date", "Activities", "Total"})
		for _, day := range result.DayOrder {
			d := result.Daily[day]
			days.AppendRow(table.Row{day, d.Activities, FormatDuration(d.DurationSeconds)})
		}
		b.WriteString("\n")
		b.WriteString(days.Render())
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatDuration renders whole seconds as 1h02m03s, 6m40s or 45s.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	sec := int64(d%time.Minute) / int64(time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

func typeLabel(result stats.Result, code string) string {
	t, ok := result.ByActivityType[code]
	if !ok || t.DisplayName == "" {
		return code
	}
	if t.Emoji == "" {
		return t.DisplayName
	}
	return t.Emoji + " " + t.DisplayName
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	return tw
}
