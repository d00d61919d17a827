package timeseries

// Values is the column-oriented series payload.
type Values struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// Response is the grid timeseries response body. Stats mixes the fixed
// location block with one entry per envelope metric plus the altitude,
// mirroring the established wire format.
type Response struct {
	Timeseries Values         `json:"timeseries"`
	Stats      map[string]any `json:"stats"`
}

// BuildResponse assembles the response body from a non-empty merged
// series. The altitude may be nil when the DEM has no coverage.
func BuildResponse(series []Point, altitude *float64) Response {
	values := Values{
		Dates:  make([]string, len(series)),
		Values: make([]float64, len(series)),
	}
	for i, p := range series {
		values.Dates[i] = p.Time.Format(DateFormat)
		values.Values[i] = p.Value
	}

	stats := make(map[string]any)
	stats["current_location_stats"] = Aggregate(series)
	for key, band := range EnvelopeStats(series) {
		stats[key] = band
	}
	stats["altitude"] = altitude

	return Response{Timeseries: values, Stats: stats}
}
