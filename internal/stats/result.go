package stats

// Summary totals every record in the input.
type Summary struct {
	TotalActivities         int   `json:"total_activities"`
	TotalDurationSeconds    int64 `json:"total_duration_seconds"`
	TotalOvertimeSeconds    int64 `json:"total_overtime_seconds"`
	TotalOvertimeCount      int   `json:"total_overtime_count"`
	UniqueUserCount         int   `json:"unique_user_count"`
	UniqueActivityTypeCount int   `json:"unique_activity_type_count"`
	Efficiency              int   `json:"efficiency"`
}

// UserTypeStats is one user's rollup for a single activity type.
type UserTypeStats struct {
	Count                  int   `json:"count"`
	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	TotalOvertimeSeconds   int64 `json:"total_overtime_seconds"`
	OvertimeCount          int   `json:"overtime_count"`
	MinDurationSeconds     int64 `json:"min_duration_seconds"`
	MaxDurationSeconds     int64 `json:"max_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`
}

// UserStats is the rollup for one user, keyed in Result.ByUser by full name.
type UserStats struct {
	UserID               int64                    `json:"user_id"`
	UserFullName         string                   `json:"user_full_name"`
	TotalActivities      int                      `json:"total_activities"`
	TotalDurationSeconds int64                    `json:"total_duration_seconds"`
	TotalOvertimeSeconds int64                    `json:"total_overtime_seconds"`
	OvertimeCount        int                      `json:"overtime_count"`
	Efficiency           int                      `json:"efficiency"`
	MostUsedActivityType string                   `json:"most_used_activity_type"`
	ActivityTypeOrder    []string                 `json:"activity_type_order"`
	ByActivityType       map[string]UserTypeStats `json:"by_activity_type"`
}

// ActivityTypeStats is the rollup for one activity type across all users.
type ActivityTypeStats struct {
	Code                   string `json:"code"`
	DisplayName            string `json:"display_name"`
	Emoji                  string `json:"emoji,omitempty"`
	TotalCount             int    `json:"total_count"`
	TotalDurationSeconds   int64  `json:"total_duration_seconds"`
	TotalOvertimeSeconds   int64  `json:"total_overtime_seconds"`
	OvertimeCount          int    `json:"overtime_count"`
	UniqueUserCount        int    `json:"unique_user_count"`
	AverageDurationSeconds int64  `json:"average_duration_seconds"`
}

// DailyStats totals the records that started on one calendar date.
type DailyStats struct {
	Activities      int   `json:"activities"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// Result is the full rollup of a record set. The order slices only drive
// display; no numeric field depends on them.
type Result struct {
	Summary           Summary                      `json:"summary"`
	ByUser            map[string]UserStats         `json:"by_user"`
	ByActivityType    map[string]ActivityTypeStats `json:"by_activity_type"`
	UserOrder         []string                     `json:"user_order"`
	ActivityTypeOrder []string                     `json:"activity_type_order"`
	Hourly            *[24]int                     `json:"hourly,omitempty"`
	Daily             map[string]DailyStats        `json:"daily,omitempty"`
	DayOrder          []string                     `json:"day_order,omitempty"`
}

// Efficiency scores the share of activities finished within budget, 0-100.
// An empty set scores 100.
func Efficiency(overtimeCount, total int) int {
	if total == 0 {
		return 100
	}
	return int(roundHalfUp((1 - float64(overtimeCount)/float64(total)) * 100))
}
