package timeseries

import (
	"time"
)

// RangeType selects how a chart window is split into buckets.
type RangeType string

const (
	Range24h    RangeType = "24h"
	Range7d     RangeType = "7d"
	Range30d    RangeType = "30d"
	Range90d    RangeType = "90d"
	RangeAll    RangeType = "all"
	RangeCustom RangeType = "custom"
)

// Granularity is the calendar unit backing a plan's buckets.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// TickCount is the fixed number of axis ticks per plan.
const TickCount = 7

// Bucket is one contiguous aggregation interval. Buckets are half-open
// [StartMs, EndMs); MidMs is used for label centering.
type Bucket struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
	MidMs   int64 `json:"midMs"`
}

// Plan describes how a time window maps onto chart buckets: always 7 ticks,
// and 6 (24h) or 7 (everything else) contiguous buckets whose ends never
// exceed EndMs.
type Plan struct {
	StartMs     int64       `json:"startMs"`
	EndMs       int64       `json:"endMs"`
	Granularity Granularity `json:"granularity"`
	Ticks       [TickCount]int64 `json:"ticks"`
	Buckets     []Bucket    `json:"buckets"`
}

// CalculateIntervals deterministically splits [start, end] into 7 ticks and a
// matching set of buckets for rangeType. The end is always clamped to now so
// no bucket implies future data; the final bucket is intentionally partial.
// A nil loc means UTC. The function is pure: identical inputs (including now)
// produce identical plans.
func CalculateIntervals(start, end time.Time, rangeType RangeType, now time.Time, loc *time.Location) Plan {
	if loc == nil {
		loc = time.UTC
	}

	// Never project into the future.
	if end.After(now) {
		end = now
	}
	end = end.In(loc)
	start = start.In(loc)

	switch rangeType {
	case Range24h:
		return rollingHourPlan(end)
	case Range7d:
		return calendarDayPlan(end, 7, loc)
	case Range30d:
		return calendarDayPlan(end, 30, loc)
	case Range90d:
		return calendarDayPlan(end, 90, loc)
	case RangeAll, RangeCustom:
		return boundedPlan(start, end, rangeType, loc)
	default:
		return boundedPlan(start, end, RangeCustom, loc)
	}
}

// rollingHourPlan builds the 24h window: aligned to the next hour boundary at
// or after end so tick labels stay stable within the hour, six 4h buckets,
// the last one clamped to end.
func rollingHourPlan(end time.Time) Plan {
	top := end.Truncate(time.Hour)
	if top.Before(end) {
		top = top.Add(time.Hour)
	}

	endMs := end.UnixMilli()
	plan := Plan{
		EndMs:       endMs,
		Granularity: GranularityHour,
	}
	for i := 0; i < TickCount; i++ {
		plan.Ticks[i] = top.Add(-time.Duration(TickCount-1-i) * 4 * time.Hour).UnixMilli()
	}
	plan.StartMs = plan.Ticks[0]
	// Seven ticks bound six 4h buckets.
	plan.Buckets = clampBuckets(plan.Ticks[:], endMs)
	return plan
}

// calendarDayPlan builds a plan of totalDays ending at the start of tomorrow
// (in loc), with the day spans distributed across 7 buckets so they sum
// exactly to totalDays.
func calendarDayPlan(end time.Time, totalDays int, loc *time.Location) Plan {
	top := startOfDay(end, loc).AddDate(0, 0, 1)
	return daySplitPlan(top.AddDate(0, 0, -totalDays), top, end.UnixMilli(), loc)
}

// daySplitPlan splits the calendar days in [from, to) across 7 buckets,
// remainder days going to the earliest buckets.
func daySplitPlan(from, to time.Time, endMs int64, loc *time.Location) Plan {
	totalDays := daysBetween(from, to)
	spans := SplitIntegerSpan(totalDays, TickCount)

	bounds := make([]int64, TickCount+1)
	cursor := from
	for i := 0; i < TickCount; i++ {
		bounds[i] = cursor.UnixMilli()
		cursor = cursor.AddDate(0, 0, spans[i])
	}
	bounds[TickCount] = to.UnixMilli()

	plan := Plan{
		StartMs:     bounds[0],
		EndMs:       endMs,
		Granularity: GranularityDay,
	}
	copy(plan.Ticks[:], bounds[:TickCount])
	plan.Buckets = clampBuckets(bounds, endMs)
	return plan
}

// monthSplitPlan splits totalMonths starting at from (a first-of-month
// instant) across 7 buckets.
func monthSplitPlan(from time.Time, totalMonths int, endMs int64) Plan {
	spans := SplitIntegerSpan(totalMonths, TickCount)

	bounds := make([]int64, TickCount+1)
	cursor := from
	for i := 0; i < TickCount; i++ {
		bounds[i] = cursor.UnixMilli()
		cursor = cursor.AddDate(0, spans[i], 0)
	}
	bounds[TickCount] = cursor.UnixMilli()

	plan := Plan{
		StartMs:     bounds[0],
		EndMs:       endMs,
		Granularity: GranularityMonth,
	}
	copy(plan.Ticks[:], bounds[:TickCount])
	plan.Buckets = clampBuckets(bounds, endMs)
	return plan
}

// hourSeventhsPlan divides the exact millisecond span into 7 equal parts.
// Used for short custom ranges where day buckets would collapse into
// duplicates. The last bucket absorbs integer-division rounding.
func hourSeventhsPlan(startMs, endMs int64) Plan {
	step := (endMs - startMs) / TickCount

	plan := Plan{
		StartMs:     startMs,
		EndMs:       endMs,
		Granularity: GranularityHour,
	}
	bounds := make([]int64, TickCount+1)
	for i := 0; i < TickCount; i++ {
		bounds[i] = startMs + int64(i)*step
	}
	bounds[TickCount] = endMs
	copy(plan.Ticks[:], bounds[:TickCount])
	plan.Buckets = clampBuckets(bounds, endMs)
	return plan
}

// boundedPlan handles the custom and all range types, where real bounds are
// supplied and the granularity degrades with the actual span. This keeps
// short histories from producing duplicate axis labels.
func boundedPlan(start, end time.Time, rangeType RangeType, loc *time.Location) Plan {
	startMs, endMs := start.UnixMilli(), end.UnixMilli()

	dayFrom := startOfDay(start, loc)
	dayTo := startOfDay(end, loc).AddDate(0, 0, 1)
	calDays := daysBetween(dayFrom, dayTo)

	// Under a week of data: hour granularity, exact sevenths.
	if calDays < TickCount {
		return hourSeventhsPlan(startMs, endMs)
	}

	monthFrom := startOfMonth(start, loc)
	monthTo := startOfMonth(end, loc).AddDate(0, 1, 0)
	totalMonths := monthsBetween(monthFrom, monthTo)

	if rangeType == RangeAll {
		if totalMonths < TickCount {
			return daySplitPlan(dayFrom, dayTo, endMs, loc)
		}
		return monthSplitPlan(monthFrom, totalMonths, endMs)
	}

	// Custom ranges only use month buckets when the user picked exact month
	// boundaries spanning at least 7 months; anything else gets day buckets.
	if calDays > 90 && totalMonths >= TickCount && isMonthAligned(start, end, loc) {
		return monthSplitPlan(monthFrom, totalMonths, endMs)
	}
	return daySplitPlan(dayFrom, dayTo, endMs, loc)
}

// SplitIntegerSpan distributes total across parts using integer division,
// assigning the remainder to the earliest parts: 30 over 7 gives
// [5 5 4 4 4 4 4], so the parts always sum exactly to total.
func SplitIntegerSpan(total, parts int) []int {
	if parts <= 0 {
		return nil
	}
	base := total / parts
	rem := total % parts

	spans := make([]int, parts)
	for i := range spans {
		spans[i] = base
		if i < rem {
			spans[i]++
		}
	}
	return spans
}

// clampBuckets forms half-open buckets from consecutive boundaries, clamping
// every end (and if necessary start) to endMs so no bucket implies future
// data.
func clampBuckets(bounds []int64, endMs int64) []Bucket {
	buckets := make([]Bucket, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		s, e := bounds[i], bounds[i+1]
		if e > endMs {
			e = endMs
		}
		if s > e {
			s = e
		}
		buckets = append(buckets, Bucket{
			StartMs: s,
			EndMs:   e,
			MidMs:   s + (e-s)/2,
		})
	}
	return buckets
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a (midnight) to b (midnight).
// Computed via date arithmetic rather than dividing by 24h so DST
// transitions don't skew the count.
func daysBetween(a, b time.Time) int {
	days := 0
	for cursor := a; cursor.Before(b); cursor = cursor.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// monthsBetween counts calendar months from a to b, both first-of-month.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// isMonthAligned reports whether start is the first instant of a month and
// end is the last millisecond of a month in loc.
func isMonthAligned(start, end time.Time, loc *time.Location) bool {
	if !start.In(loc).Equal(startOfMonth(start, loc)) {
		return false
	}
	next := end.In(loc).Add(time.Millisecond)
	return next.Equal(startOfMonth(next, loc))
}
