package timeseries

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hourBuckets(t *testing.T, start string, n int) []Bucket {
	t.Helper()
	base := mustParse(t, start).UnixMilli()
	step := int64(time.Hour / time.Millisecond)

	buckets := make([]Bucket, n)
	for i := range buckets {
		s := base + int64(i)*step
		buckets[i] = Bucket{StartMs: s, EndMs: s + step, MidMs: s + step/2}
	}
	return buckets
}

func TestAggregate_SingleSampleRoundTrip(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 3)
	samples := []Sample{{X: "2024-01-01T01:30:00Z", Y: 42}}

	for _, op := range []AggOp{AggSum, AggAvg, AggMin, AggMax} {
		got := Aggregate(samples, buckets, op)
		assert.Equal(t, []float64{0, 42, 0}, got, "op %s", op)
	}
}

func TestAggregate_EmptyBucketsYieldZero(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 4)

	for _, op := range []AggOp{AggSum, AggAvg, AggMin, AggMax} {
		got := Aggregate(nil, buckets, op)
		assert.Equal(t, []float64{0, 0, 0, 0}, got, "op %s", op)
	}
}

func TestAggregate_Ops(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 2)
	samples := []Sample{
		{X: "2024-01-01T00:10:00Z", Y: 1},
		{X: "2024-01-01T00:20:00Z", Y: 5},
		{X: "2024-01-01T00:30:00Z", Y: 3},
		{X: "2024-01-01T01:15:00Z", Y: 7},
	}

	assert.Equal(t, []float64{9, 7}, Aggregate(samples, buckets, AggSum))
	assert.Equal(t, []float64{3, 7}, Aggregate(samples, buckets, AggAvg))
	assert.Equal(t, []float64{1, 7}, Aggregate(samples, buckets, AggMin))
	assert.Equal(t, []float64{5, 7}, Aggregate(samples, buckets, AggMax))
}

func TestAggregate_HalfOpenBoundary(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 2)

	// A sample exactly on the shared boundary belongs to the later bucket only.
	samples := []Sample{{X: "2024-01-01T01:00:00Z", Y: 10}}
	assert.Equal(t, []float64{0, 10}, Aggregate(samples, buckets, AggSum))
}

func TestAggregate_OrderIndependent(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 6)

	base := mustParse(t, "2024-01-01T00:00:00Z")
	var samples []Sample
	for i := 0; i < 200; i++ {
		ts := base.Add(time.Duration(i) * 100 * time.Second)
		samples = append(samples, Sample{X: ts.Format(time.RFC3339), Y: float64(i % 13)})
	}
	want := Aggregate(samples, buckets, AggSum)

	rng := rand.New(rand.NewSource(1))
	shuffled := append([]Sample(nil), samples...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	assert.Equal(t, want, Aggregate(shuffled, buckets, AggSum))
}

func TestAggregate_BadInput(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 1)
	samples := []Sample{
		{X: "not-a-timestamp", Y: 99},            // dropped
		{X: "2024-01-01T00:30:00Z", Y: math.NaN()}, // counts as 0
		{X: "2024-01-01T00:40:00Z", Y: math.Inf(1)}, // counts as 0
		{X: "2024-01-01T00:50:00Z", Y: 4},
	}

	assert.Equal(t, []float64{4}, Aggregate(samples, buckets, AggSum))
	// Three valid samples: 0, 0, 4.
	got := Aggregate(samples, buckets, AggAvg)
	assert.InDelta(t, 4.0/3.0, got[0], 1e-9)
}

func TestAggregate_LegacyTimestampFormat(t *testing.T) {
	buckets := hourBuckets(t, "2024-01-01T00:00:00Z", 1)
	samples := []Sample{{X: "2024-01-01 00:30:00", Y: 2}}

	assert.Equal(t, []float64{2}, Aggregate(samples, buckets, AggSum))
}
