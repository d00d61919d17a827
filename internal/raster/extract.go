package raster

import (
	"github.com/rs/zerolog/log"

	"github.com/wetterklima/gridserver/internal/geotiff"
	"github.com/wetterklima/gridserver/internal/proj"
)

// Extractor reads single pixel values from rasters at a geographic
// point. The shared projector is immutable, so one Extractor serves all
// scan workers concurrently; raster handles are opened per call.
type Extractor struct {
	projector *proj.Projector
}

// NewExtractor initializes the point extractor and its fixed
// EPSG:4326 -> EPSG:31287 transform.
func NewExtractor() *Extractor {
	return &Extractor{projector: proj.New()}
}

// Extract reads the band-1 value covering (lat, lng) from the raster at
// path. A nil value means the point lies outside the raster extent,
// which is an expected outcome, not an error.
func (e *Extractor) Extract(path string, lat, lng float64) (*float64, error) {
	f, err := geotiff.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("path", path).Msg("Failed to close raster")
		}
	}()

	x, y := e.projector.Project(lat, lng)
	if !f.Contains(x, y) {
		return nil, nil
	}

	row, col := f.Index(x, y)
	value, err := f.PixelAt(row, col)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
