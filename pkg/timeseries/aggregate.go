package timeseries

import (
	"math"
	"sort"
	"time"
)

// Sample is one raw data point as returned by the stats API: an ISO
// timestamp and a numeric value.
type Sample struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// AggOp selects how samples inside a bucket are folded.
type AggOp string

const (
	AggSum AggOp = "sum"
	AggAvg AggOp = "avg"
	AggMin AggOp = "min"
	AggMax AggOp = "max"
)

// sampleLayouts are tried in order when parsing sample timestamps. Umami
// returns RFC 3339 from newer servers and "2006-01-02 15:04:05" from older
// ones.
var sampleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type point struct {
	ms int64
	y  float64
}

// Aggregate folds unordered samples into the given buckets. Samples with
// unparseable timestamps are dropped; non-finite values count as 0. Buckets
// are half-open [StartMs, EndMs), so a sample never lands in two adjacent
// buckets. Empty buckets yield 0 for every op — chart rendering assumes
// numeric output.
//
// One sort plus a single forward sweep: O(n log n + buckets), independent of
// how the caller ordered the input.
func Aggregate(samples []Sample, buckets []Bucket, op AggOp) []float64 {
	points := make([]point, 0, len(samples))
	for _, s := range samples {
		ms, ok := parseSampleTime(s.X)
		if !ok {
			continue
		}
		y := s.Y
		if math.IsNaN(y) || math.IsInf(y, 0) {
			y = 0
		}
		points = append(points, point{ms: ms, y: y})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].ms < points[j].ms })

	out := make([]float64, len(buckets))
	idx := 0
	for bi, b := range buckets {
		// Skip samples that fall before this bucket (gaps between clamped
		// buckets are possible). The pointer never rewinds.
		for idx < len(points) && points[idx].ms < b.StartMs {
			idx++
		}

		var (
			count    int
			sum      float64
			min, max float64
		)
		for idx < len(points) && points[idx].ms < b.EndMs {
			y := points[idx].y
			if count == 0 {
				min, max = y, y
			} else {
				if y < min {
					min = y
				}
				if y > max {
					max = y
				}
			}
			sum += y
			count++
			idx++
		}

		if count == 0 {
			out[bi] = 0
			continue
		}
		switch op {
		case AggAvg:
			out[bi] = sum / float64(count)
		case AggMin:
			out[bi] = min
		case AggMax:
			out[bi] = max
		default:
			out[bi] = sum
		}
	}
	return out
}

func parseSampleTime(x string) (int64, bool) {
	for _, layout := range sampleLayouts {
		if t, err := time.Parse(layout, x); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
