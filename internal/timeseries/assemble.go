package timeseries

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wetterklima/gridserver/internal/raster"
)

// ErrNoTimestamp marks a raster filename without an embedded
// YYYYMMDDTHHMMSS token. Unlike a point without coverage this is a
// data-integrity violation and aborts the series.
var ErrNoTimestamp = errors.New("no timestamp in raster filename")

var timestampPattern = regexp.MustCompile(`\d{8}T\d{6}`)

// sunshineVariable accumulates seconds; with a month filter its values
// are reported as average hours per day.
const sunshineVariable = "SA"

// noonShift aligns the grids' midnight timestamps with the envelope
// table's noon-anchored convention.
const noonShift = 12 * time.Hour

// Point is one entry of an assembled series. Envelope is nil when the
// statistics table had no row for the timestamp.
type Point struct {
	Time     time.Time
	Value    float64
	Envelope *EnvelopeRow
}

// TimestampFromFilename extracts the embedded datetime token from a
// raster file path.
func TimestampFromFilename(path string) (time.Time, error) {
	name := filepath.Base(path)
	token := timestampPattern.FindString(name)
	if token == "" {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoTimestamp, name)
	}
	ts, err := time.ParseInLocation("20060102T150405", token, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoTimestamp, name)
	}
	return ts, nil
}

// Assemble turns an unordered scan result bag into a chronological
// series merged with the envelope table. A nil series (with nil error)
// means no file had coverage for the point; the caller answers with an
// empty response. Per-file read failures are dropped from the series;
// filenames without a timestamp abort it with ErrNoTimestamp.
func Assemble(results []raster.Result, variable string, month *int, envelopes *EnvelopeTable) ([]Point, error) {
	covered := false
	for _, res := range results {
		if res.Err == nil && res.Value != nil {
			covered = true
			break
		}
	}
	if !covered {
		return nil, nil
	}

	series := make([]Point, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("path", res.Path).Msg("Skipping unreadable raster")
			continue
		}
		if res.Value == nil {
			continue
		}

		ts, err := TimestampFromFilename(res.Path)
		if err != nil {
			return nil, err
		}

		value := *res.Value
		if variable == sunshineVariable && month != nil {
			// Accumulated seconds to average hours per day.
			value = value / 3600 / 30
		}

		series = append(series, Point{Time: ts.Add(noonShift), Value: value})
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Time.Before(series[j].Time)
	})

	if envelopes != nil {
		for i := range series {
			if row, ok := envelopes.Lookup(series[i].Time); ok {
				series[i].Envelope = &row
			}
		}
	}

	return series, nil
}
