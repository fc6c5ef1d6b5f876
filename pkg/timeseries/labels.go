package timeseries

import (
	"fmt"
	"time"
)

// FormatLabels renders tick timestamps as short axis labels in the given IANA
// timezone: "14" for hour granularity, "Jan 5" for day, "Jan '24" for month.
// An unknown or empty timezone falls back to UTC, and an unknown granularity
// falls back to a plain date so the axis never renders blank.
func FormatLabels(ticks []int64, granularity Granularity, timezone string) []string {
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	labels := make([]string, len(ticks))
	for i, ms := range ticks {
		t := time.UnixMilli(ms).In(loc)
		switch granularity {
		case GranularityHour:
			labels[i] = fmt.Sprintf("%02d", t.Hour())
		case GranularityDay:
			labels[i] = t.Format("Jan 2")
		case GranularityMonth:
			labels[i] = t.Format("Jan '06")
		default:
			labels[i] = t.Format("2006-01-02")
		}
	}
	return labels
}
