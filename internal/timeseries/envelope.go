// Package timeseries assembles chronological series from raster scan
// results, merges them with precomputed distribution envelopes and
// reduces them to location statistics.
package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the wire format of all timestamps, matching the
// envelope CSV's datetime column.
const DateFormat = "2006-01-02 15:04:05"

// Bands partition the raster pixels by terrain class.
var Bands = []string{"full", "valley", "mountain"}

// Metrics are the precomputed spread envelopes per band.
var Metrics = []string{"idr", "iqr", "minmax"}

// EnvelopeKeys enumerates the nine metric_band columns of the envelope
// table in their canonical order.
func EnvelopeKeys() []string {
	keys := make([]string, 0, len(Bands)*len(Metrics))
	for _, band := range Bands {
		for _, metric := range Metrics {
			keys = append(keys, metric+"_"+band)
		}
	}
	return keys
}

// EnvelopeRow holds the decoded [min, max] pairs of one timestamp,
// keyed by metric_band. Columns that were absent or unparseable are
// simply missing.
type EnvelopeRow struct {
	Ranges map[string][2]float64
}

// EnvelopeTable is the precomputed per-timestamp statistics table
// loaded from geotiff_metrics_timeseries.csv.
type EnvelopeTable struct {
	rows map[time.Time]EnvelopeRow
}

// LoadEnvelopeTable reads the envelope CSV at path. The file must carry
// a datetime column; the metric_band columns are picked up by name.
func LoadEnvelopeTable(path string) (*EnvelopeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return parseEnvelopeTable(f, path)
}

func parseEnvelopeTable(r io.Reader, name string) (*EnvelopeTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", name, err)
	}

	dateCol := -1
	columns := make(map[int]string)
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "datetime" {
			dateCol = i
			continue
		}
		for _, key := range EnvelopeKeys() {
			if col == key {
				columns[i] = key
				break
			}
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("%s: missing datetime column", name)
	}

	table := &EnvelopeTable{rows: make(map[time.Time]EnvelopeRow)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: reading row: %w", name, err)
		}
		if dateCol >= len(record) {
			continue
		}

		ts, err := time.ParseInLocation(DateFormat, strings.TrimSpace(record[dateCol]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%s: bad datetime %q: %w", name, record[dateCol], err)
		}

		row := EnvelopeRow{Ranges: make(map[string][2]float64, len(columns))}
		for i, key := range columns {
			if i >= len(record) {
				continue
			}
			pair, ok := parsePair(record[i])
			if !ok {
				continue
			}
			row.Ranges[key] = pair
		}
		table.rows[ts] = row
	}
	return table, nil
}

// Lookup returns the envelope row for an exact timestamp match.
func (t *EnvelopeTable) Lookup(ts time.Time) (EnvelopeRow, bool) {
	row, ok := t.rows[ts]
	return row, ok
}

// Len reports the number of rows in the table.
func (t *EnvelopeTable) Len() int {
	return len(t.rows)
}

// parsePair decodes a string-encoded two-element array such as
// "[1.2, 3.4]".
func parsePair(cell string) ([2]float64, bool) {
	cell = strings.TrimSpace(cell)
	cell = strings.TrimPrefix(cell, "[")
	cell = strings.TrimSuffix(cell, "]")

	parts := strings.Split(cell, ",")
	if len(parts) != 2 {
		return [2]float64{}, false
	}

	var pair [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [2]float64{}, false
		}
		pair[i] = v
	}
	return pair, true
}
