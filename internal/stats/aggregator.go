// Package stats rolls completed activities up into per-user, per-type and
// per-period statistics shared by every report surface.
package stats

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
)

// DateLayout formats keys of Result.Daily.
const DateLayout = "2006-01-02"

// Catalog supplies activity-type metadata and display order.
type Catalog interface {
	Get(code string) (catalog.ActivityType, bool)
	Codes() []string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLocation sets the timezone used for hourly and daily buckets.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithHourly enables the 24-bucket hour-of-day breakdown.
func WithHourly() Option {
	return func(a *Aggregator) { a.hourly = true }
}

// WithDaily enables the per-date breakdown.
func WithDaily() Option {
	return func(a *Aggregator) { a.daily = true }
}

// Aggregator computes Results. It holds no per-call state and is safe for
// concurrent use.
type Aggregator struct {
	types  Catalog
	loc    *time.Location
	hourly bool
	daily  bool
}

// NewAggregator constructs an Aggregator.
func NewAggregator(types Catalog, opts ...Option) *Aggregator {
	a := &Aggregator{types: types, loc: time.UTC}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type typeAcc struct {
	count    int
	duration int64
	overtime int64
	otCount  int
	min      int64
	max      int64
}

func (t *typeAcc) add(duration, overtime int64) {
	if t.count == 0 || duration < t.min {
		t.min = duration
	}
	if duration > t.max {
		t.max = duration
	}
	t.count++
	t.duration += duration
	t.overtime += overtime
	if overtime > 0 {
		t.otCount++
	}
}

type userAcc struct {
	userID    int64
	name      string
	total     typeAcc
	types     map[string]*typeAcc
	typeOrder []string
}

type globalTypeAcc struct {
	typeAcc
	users map[string]struct{}
}

// Aggregate rolls records up in a single pass. Records are assumed to be
// already filtered to one chat and one window.
func (a *Aggregator) Aggregate(records []domain.CompletedActivity) Result {
	var summary typeAcc
	users := make(map[string]*userAcc)
	userOrder := make([]string, 0)
	types := make(map[string]*globalTypeAcc)
	seenTypes := make([]string, 0)

	var hourly [24]int
	daily := make(map[string]*DailyStats)
	dayOrder := make([]string, 0)

	for _, rec := range records {
		duration := nonNegative(rec.DurationSeconds)
		overtime := nonNegative(rec.OvertimeSeconds)
		userKey := UserKey(rec)

		summary.add(duration, overtime)

		u, ok := users[userKey]
		if !ok {
			u = &userAcc{name: userKey, types: make(map[string]*typeAcc)}
			users[userKey] = u
			userOrder = append(userOrder, userKey)
		}
		u.userID = rec.UserID
		u.total.add(duration, overtime)
		ut, ok := u.types[rec.ActivityType]
		if !ok {
			ut = &typeAcc{}
			u.types[rec.ActivityType] = ut
			u.typeOrder = append(u.typeOrder, rec.ActivityType)
		}
		ut.add(duration, overtime)

		gt, ok := types[rec.ActivityType]
		if !ok {
			gt = &globalTypeAcc{users: make(map[string]struct{})}
			types[rec.ActivityType] = gt
			seenTypes = append(seenTypes, rec.ActivityType)
		}
		gt.add(duration, overtime)
		gt.users[userKey] = struct{}{}

		if a.hourly || a.daily {
			local := rec.StartTime.In(a.loc)
			if a.hourly {
				hourly[local.Hour()]++
			}
			if a.daily {
				day := local.Format(DateLayout)
				d, ok := daily[day]
				if !ok {
					d = &DailyStats{}
					daily[day] = d
					dayOrder = append(dayOrder, day)
				}
				d.Activities++
				d.DurationSeconds += duration
			}
		}
	}

	result := Result{
		Summary: Summary{
			TotalActivities:         summary.count,
			TotalDurationSeconds:    summary.duration,
			TotalOvertimeSeconds:    summary.overtime,
			TotalOvertimeCount:      summary.otCount,
			UniqueUserCount:         len(users),
			UniqueActivityTypeCount: len(types),
			Efficiency:              Efficiency(summary.otCount, summary.count),
		},
		ByUser:            make(map[string]UserStats, len(users)),
		ByActivityType:    make(map[string]ActivityTypeStats, len(types)),
		UserOrder:         userOrder,
		ActivityTypeOrder: a.typeOrder(seenTypes),
	}

	for _, key := range userOrder {
		u := users[key]
		entry := UserStats{
			UserID:               u.userID,
			UserFullName:         u.name,
			TotalActivities:      u.total.count,
			TotalDurationSeconds: u.total.duration,
			TotalOvertimeSeconds: u.total.overtime,
			OvertimeCount:        u.total.otCount,
			Efficiency:           Efficiency(u.total.otCount, u.total.count),
			ActivityTypeOrder:    u.typeOrder,
			ByActivityType:       make(map[string]UserTypeStats, len(u.types)),
		}
		best := 0
		for _, code := range u.typeOrder {
			t := u.types[code]
			entry.ByActivityType[code] = UserTypeStats{
				Count:                  t.count,
				TotalDurationSeconds:   t.duration,
				TotalOvertimeSeconds:   t.overtime,
				OvertimeCount:          t.otCount,
				MinDurationSeconds:     t.min,
				MaxDurationSeconds:     t.max,
				AverageDurationSeconds: average(t.duration, t.count),
			}
			// Strictly greater keeps the first-encountered type on ties.
			if t.count > best {
				best = t.count
				entry.MostUsedActivityType = code
			}
		}
		result.ByUser[key] = entry
	}

	for _, code := range seenTypes {
		t := types[code]
		display, emoji := code, ""
		if cfg, ok := a.types.Get(code); ok {
			display, emoji = cfg.DisplayName, cfg.Emoji
		}
		result.ByActivityType[code] = ActivityTypeStats{
			Code:                   code,
			DisplayName:            display,
			Emoji:                  emoji,
			TotalCount:             t.count,
			TotalDurationSeconds:   t.duration,
			TotalOvertimeSeconds:   t.overtime,
			OvertimeCount:          t.otCount,
			UniqueUserCount:        len(t.users),
			AverageDurationSeconds: average(t.duration, t.count),
		}
	}

	if a.hourly {
		h := hourly
		result.Hourly = &h
	}
	if a.daily {
		sort.Strings(dayOrder)
		result.DayOrder = dayOrder
		result.Daily = make(map[string]DailyStats, len(daily))
		for day, d := range daily {
			result.Daily[day] = *d
		}
	}
	return result
}

// typeOrder lists catalog codes that occurred in catalog order, then unknown
// codes in first-encountered order.
func (a *Aggregator) typeOrder(seen []string) []string {
	present := make(map[string]bool, len(seen))
	for _, code := range seen {
		present[code] = true
	}
	out := make([]string, 0, len(seen))
	for _, code := range a.types.Codes() {
		if present[code] {
			out = append(out, code)
			delete(present, code)
		}
	}
	for _, code := range seen {
		if present[code] {
			out = append(out, code)
		}
	}
	return out
}

// UserKey is the grouping key for a record's user: the full name, or the
// numeric id when the name is blank.
func UserKey(rec domain.CompletedActivity) string {
	if rec.UserFullName != "" {
		return rec.UserFullName
	}
	return "user " + strconv.FormatInt(rec.UserID, 10)
}

func average(total int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return int64(roundHalfUp(float64(total) / float64(count)))
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
