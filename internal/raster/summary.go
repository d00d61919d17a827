package raster

import (
	"fmt"
	"math"

	"github.com/wetterklima/gridserver/internal/geotiff"
)

// Summary aggregates a whole raster band.
type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Summarize reduces band 1 of the raster at path to min/max/mean,
// excluding nodata pixels. A raster without a single valid pixel is an
// error.
func Summarize(path string) (Summary, error) {
	f, err := geotiff.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = f.Close() }()

	band, err := f.ReadBand()
	if err != nil {
		return Summary{}, err
	}

	nodata, hasNodata := f.NoData()

	sum := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var total float64
	var count int
	for _, v := range band {
		if math.IsNaN(v) {
			continue
		}
		if hasNodata && v == nodata {
			continue
		}
		if v < sum.Min {
			sum.Min = v
		}
		if v > sum.Max {
			sum.Max = v
		}
		total += v
		count++
	}

	if count == 0 {
		return Summary{}, fmt.Errorf("%s: raster has no valid pixels", path)
	}
	sum.Mean = total / float64(count)
	return sum, nil
}
