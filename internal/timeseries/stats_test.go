package timeseries

import (
	"math"
	"testing"
	"time"
)

func point(year int, v float64) Point {
	return Point{Time: time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC), Value: v}
}

func TestAggregateOverall(t *testing.T) {
	series := []Point{point(1966, 10), point(1967, 20), point(1968, 5)}

	stats := Aggregate(series)

	if math.Abs(stats.Overall.Mean-35.0/3.0) > 1e-9 {
		t.Errorf("mean = %f, want %f", stats.Overall.Mean, 35.0/3.0)
	}
	if stats.Overall.Min.Value != 5 {
		t.Errorf("min = %f, want 5", stats.Overall.Min.Value)
	}
	if stats.Overall.Min.Date != "1968-06-15 12:00:00" {
		t.Errorf("min date = %s", stats.Overall.Min.Date)
	}
	if stats.Overall.Max.Value != 20 {
		t.Errorf("max = %f, want 20", stats.Overall.Max.Value)
	}
	if stats.Overall.Max.Date != "1967-06-15 12:00:00" {
		t.Errorf("max date = %s", stats.Overall.Max.Date)
	}
}

func TestAggregateTopAndBottom(t *testing.T) {
	series := []Point{
		point(1961, 3), point(1962, 1), point(1963, 4),
		point(1964, 1), point(1965, 5), point(1966, 9), point(1967, 2),
	}

	stats := Aggregate(series)

	if len(stats.Overall.Top5.Value) != 5 || len(stats.Overall.Bottom5.Value) != 5 {
		t.Fatalf("top/bottom lengths = %d/%d, want 5/5",
			len(stats.Overall.Top5.Value), len(stats.Overall.Bottom5.Value))
	}

	wantTop := []float64{9, 5, 4, 3, 2}
	for i, v := range wantTop {
		if stats.Overall.Top5.Value[i] != v {
			t.Errorf("top5[%d] = %f, want %f", i, stats.Overall.Top5.Value[i], v)
		}
	}

	// Ties keep chronological order: 1962 before 1964.
	wantBottom := []float64{1, 1, 2, 3, 4}
	for i, v := range wantBottom {
		if stats.Overall.Bottom5.Value[i] != v {
			t.Errorf("bottom5[%d] = %f, want %f", i, stats.Overall.Bottom5.Value[i], v)
		}
	}
	if stats.Overall.Bottom5.Date[0] != "1962-06-15 12:00:00" {
		t.Errorf("tie order broken: bottom5 starts at %s", stats.Overall.Bottom5.Date[0])
	}
}

func TestAggregateShortSeries(t *testing.T) {
	stats := Aggregate([]Point{point(1966, 10), point(1967, 20)})

	if len(stats.Overall.Top5.Value) != 2 {
		t.Errorf("top5 length = %d, want 2", len(stats.Overall.Top5.Value))
	}
}

func TestAggregateReferencePeriods(t *testing.T) {
	series := []Point{
		point(1965, 10),
		point(1995, 30),
		point(2023, 100),
	}

	stats := Aggregate(series)

	if stats.Ref1961 == nil {
		t.Fatal("1961-1991 block missing")
	}
	if stats.Ref1961.Mean != 10 || stats.Ref1961.Min.Value != 10 || stats.Ref1961.Max.Value != 10 {
		t.Errorf("1961-1991 stats = %+v, want all 10", stats.Ref1961)
	}

	if stats.Ref1991 == nil {
		t.Fatal("1991-2020 block missing")
	}
	if stats.Ref1991.Mean != 30 {
		t.Errorf("1991-2020 mean = %f, want 30", stats.Ref1991.Mean)
	}
}

// 1991 belongs to both baselines; the overlap is intentional.
func TestAggregatePeriodOverlap(t *testing.T) {
	series := []Point{point(1991, 42)}

	stats := Aggregate(series)

	if stats.Ref1961 == nil || stats.Ref1961.Mean != 42 {
		t.Error("1991 row missing from 1961-1991 window")
	}
	if stats.Ref1991 == nil || stats.Ref1991.Mean != 42 {
		t.Error("1991 row missing from 1991-2020 window")
	}
}

// An empty reference window reports null, never a crash or a garbage
// reduction.
func TestAggregateEmptyPeriod(t *testing.T) {
	series := []Point{point(2023, 1), point(2024, 2)}

	stats := Aggregate(series)

	if stats.Ref1961 != nil {
		t.Errorf("1961-1991 = %+v, want nil for empty window", stats.Ref1961)
	}
	if stats.Ref1991 != nil {
		t.Errorf("1991-2020 = %+v, want nil for empty window", stats.Ref1991)
	}
	if stats.Overall.Mean != 1.5 {
		t.Errorf("overall mean = %f, want 1.5", stats.Overall.Mean)
	}
}

func TestEnvelopeStats(t *testing.T) {
	withEnv := point(1966, 1)
	withEnv.Envelope = &EnvelopeRow{Ranges: map[string][2]float64{
		"idr_full": {1, 9},
	}}
	withEnv2 := point(1967, 2)
	withEnv2.Envelope = &EnvelopeRow{Ranges: map[string][2]float64{
		"idr_full": {3, 11},
	}}
	noEnv := point(1968, 3)

	bands := EnvelopeStats([]Point{withEnv, withEnv2, noEnv})

	idr := bands["idr_full"]
	if len(idr.Min) != 3 || len(idr.Max) != 3 {
		t.Fatalf("sequence lengths = %d/%d, want 3/3", len(idr.Min), len(idr.Max))
	}
	if idr.Min[0] == nil || *idr.Min[0] != 1 {
		t.Error("idr_full min[0] wrong")
	}
	if idr.Max[1] == nil || *idr.Max[1] != 11 {
		t.Error("idr_full max[1] wrong")
	}
	if idr.Min[2] != nil {
		t.Error("row without envelope should contribute null")
	}
	if idr.Mean == nil || *idr.Mean != 2 {
		t.Errorf("idr_full mean = %v, want 2", idr.Mean)
	}

	// Metrics absent from every row report null means and all-null
	// sequences.
	iqr := bands["iqr_mountain"]
	if iqr.Mean != nil {
		t.Errorf("iqr_mountain mean = %v, want nil", iqr.Mean)
	}
}

func TestBuildResponse(t *testing.T) {
	altitude := 442.0
	series := []Point{point(1966, 10), point(1967, 20)}

	resp := BuildResponse(series, &altitude)

	if len(resp.Timeseries.Dates) != 2 || len(resp.Timeseries.Values) != 2 {
		t.Fatalf("timeseries columns %d/%d, want 2/2",
			len(resp.Timeseries.Dates), len(resp.Timeseries.Values))
	}
	if resp.Timeseries.Dates[0] != "1966-06-15 12:00:00" {
		t.Errorf("dates[0] = %s", resp.Timeseries.Dates[0])
	}

	if _, ok := resp.Stats["current_location_stats"]; !ok {
		t.Error("stats block missing current_location_stats")
	}
	for _, key := range EnvelopeKeys() {
		if _, ok := resp.Stats[key]; !ok {
			t.Errorf("stats block missing %s", key)
		}
	}
	if got, ok := resp.Stats["altitude"].(*float64); !ok || got == nil || *got != 442 {
		t.Error("stats block missing altitude")
	}
}
