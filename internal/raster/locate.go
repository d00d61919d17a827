// Package raster locates climate grid files, extracts point values from
// them concurrently and reduces whole rasters to summary statistics.
package raster

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrBadFilename marks a raster filename without a parseable embedded
// date. It indicates a naming-convention violation in the datahub, not
// an empty result.
var ErrBadFilename = errors.New("raster filename has no parseable date")

const climMarker = "CLIM"

// Locate lists the raster files in dir carrying ext, filtered by the
// month and/or day embedded in their filename date token when the
// filters are set. Both filters gate inclusion independently.
func Locate(dir, ext string, month, day *int) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	if month == nil && day == nil {
		return paths, nil
	}

	matched := make([]string, 0, len(paths))
	for _, path := range paths {
		m, d, err := filenameDate(path)
		if err != nil {
			return nil, err
		}
		if month != nil && m != *month {
			continue
		}
		if day != nil && d != *day {
			continue
		}
		matched = append(matched, path)
	}
	return matched, nil
}

// filenameDate extracts the month and day from the 8-digit date token
// embedded in a raster filename. Two dialects exist: derived CLIM
// layers carry the token as the third-from-last underscore segment
// (e.g. ..._CLIM_20230601T000000_1991_2020.tif), plain layers as the
// last one (e.g. ..._TM_2023_20230601T000000.tif).
func filenameDate(path string) (month, day int, err error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	segments := strings.Split(name, "_")
	var token string
	if strings.Contains(name, climMarker) {
		if len(segments) < 3 {
			return 0, 0, fmt.Errorf("%w: %s", ErrBadFilename, name)
		}
		token = segments[len(segments)-3]
	} else {
		token = segments[len(segments)-1]
	}

	if len(token) < 8 {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadFilename, name)
	}
	if _, err := strconv.Atoi(token[:8]); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadFilename, name)
	}

	month, _ = strconv.Atoi(token[4:6])
	day, _ = strconv.Atoi(token[6:8])
	return month, day, nil
}
