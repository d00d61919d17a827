package timeseries

import (
	"sort"
	"time"
)

// The two standard 30-year climate baselines. They overlap in 1991 on
// purpose; both are recognized reference periods.
var (
	RefPeriod1961 = Period{
		Name:  "1961_1991",
		Start: time.Date(1961, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(1991, 12, 31, 23, 59, 59, 0, time.UTC),
	}
	RefPeriod1991 = Period{
		Name:  "1991_2020",
		Start: time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC),
	}
)

// topCount is how many extreme rows the overall block reports.
const topCount = 5

// Period is an inclusive datetime window.
type Period struct {
	Name       string
	Start, End time.Time
}

// Contains reports whether ts falls inside the window, boundaries
// included.
func (p Period) Contains(ts time.Time) bool {
	return !ts.Before(p.Start) && !ts.After(p.End)
}

// Extreme is a full series row, so the timestamp of a minimum or
// maximum stays recoverable.
type Extreme struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// TopList is a column-oriented list of extreme rows.
type TopList struct {
	Date  []string  `json:"date"`
	Value []float64 `json:"value"`
}

// OverallStats summarizes the full series.
type OverallStats struct {
	Mean    float64 `json:"mean"`
	Min     Extreme `json:"min"`
	Max     Extreme `json:"max"`
	Top5    TopList `json:"top5"`
	Bottom5 TopList `json:"bottom5"`
}

// PeriodStats summarizes one reference window.
type PeriodStats struct {
	Mean float64 `json:"mean"`
	Min  Extreme `json:"min"`
	Max  Extreme `json:"max"`
}

// LocationStats is the per-point statistics block. A reference period
// without any rows reports null instead of failing the request.
type LocationStats struct {
	Overall OverallStats `json:"overall"`
	Ref1961 *PeriodStats `json:"1961_1991"`
	Ref1991 *PeriodStats `json:"1991_2020"`
}

// BandStats reports one envelope metric across the series: the min and
// max sequences plus the mean of the minima. Rows without an envelope
// contribute nulls.
type BandStats struct {
	Min  []*float64 `json:"min"`
	Max  []*float64 `json:"max"`
	Mean *float64   `json:"mean"`
}

func extreme(p Point) Extreme {
	return Extreme{Date: p.Time.Format(DateFormat), Value: p.Value}
}

// Aggregate reduces a non-empty series to its statistics block.
func Aggregate(series []Point) LocationStats {
	stats := LocationStats{
		Overall: overall(series),
		Ref1961: periodStats(series, RefPeriod1961),
		Ref1991: periodStats(series, RefPeriod1991),
	}
	return stats
}

func overall(series []Point) OverallStats {
	var sum float64
	minIdx, maxIdx := 0, 0
	for i, p := range series {
		sum += p.Value
		if p.Value < series[minIdx].Value {
			minIdx = i
		}
		if p.Value > series[maxIdx].Value {
			maxIdx = i
		}
	}

	// Stable sorts keep chronological order between equal values.
	desc := make([]Point, len(series))
	copy(desc, series)
	sort.SliceStable(desc, func(i, j int) bool { return desc[i].Value > desc[j].Value })

	asc := make([]Point, len(series))
	copy(asc, series)
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].Value < asc[j].Value })

	return OverallStats{
		Mean:    sum / float64(len(series)),
		Min:     extreme(series[minIdx]),
		Max:     extreme(series[maxIdx]),
		Top5:    topList(desc),
		Bottom5: topList(asc),
	}
}

func topList(sorted []Point) TopList {
	n := topCount
	if len(sorted) < n {
		n = len(sorted)
	}

	list := TopList{Date: make([]string, 0, n), Value: make([]float64, 0, n)}
	for _, p := range sorted[:n] {
		list.Date = append(list.Date, p.Time.Format(DateFormat))
		list.Value = append(list.Value, p.Value)
	}
	return list
}

func periodStats(series []Point, period Period) *PeriodStats {
	var window []Point
	for _, p := range series {
		if period.Contains(p.Time) {
			window = append(window, p)
		}
	}
	if len(window) == 0 {
		return nil
	}

	var sum float64
	minIdx, maxIdx := 0, 0
	for i, p := range window {
		sum += p.Value
		if p.Value < window[minIdx].Value {
			minIdx = i
		}
		if p.Value > window[maxIdx].Value {
			maxIdx = i
		}
	}

	return &PeriodStats{
		Mean: sum / float64(len(window)),
		Min:  extreme(window[minIdx]),
		Max:  extreme(window[maxIdx]),
	}
}

// EnvelopeStats reduces the merged envelope columns to per-band
// sequences and means.
func EnvelopeStats(series []Point) map[string]BandStats {
	out := make(map[string]BandStats, len(Bands)*len(Metrics))

	for _, key := range EnvelopeKeys() {
		band := BandStats{
			Min: make([]*float64, len(series)),
			Max: make([]*float64, len(series)),
		}

		var sum float64
		var count int
		for i, p := range series {
			if p.Envelope == nil {
				continue
			}
			pair, ok := p.Envelope.Ranges[key]
			if !ok {
				continue
			}
			lo, hi := pair[0], pair[1]
			band.Min[i] = &lo
			band.Max[i] = &hi
			sum += lo
			count++
		}
		if count > 0 {
			mean := sum / float64(count)
			band.Mean = &mean
		}

		out[key] = band
	}
	return out
}
