package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wetterklima/gridserver/internal/raster"
	"github.com/wetterklima/gridserver/internal/timeseries"
)

const envelopeFileName = "geotiff_metrics_timeseries.csv"

type gridTimeseriesRequest struct {
	Dataset       *string  `json:"dataset"`
	Variable      *string  `json:"variable"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	LayerDate     string   `json:"layerDate"`
	Climate       bool     `json:"climate"`
	ClimatePeriod string   `json:"climate_period"`
}

type rasterStatsRequest struct {
	Dataset           *string `json:"dataset"`
	Variable          *string `json:"variable"`
	SelectedLayerName *string `json:"selectedLayerName"`
	Climate           bool    `json:"climate"`
}

func (s *Server) handleTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Hello": "World"})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.users == nil || s.issuer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "login is not configured"})
		return
	}

	name, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="login required"`)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "could not verify"})
		return
	}

	user, err := s.users.Authenticate(name, password)
	if err != nil {
		c.Header("WWW-Authenticate", `Basic realm="login required"`)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "could not verify"})
		return
	}

	token, err := s.issuer.Issue(user.PublicID)
	if err != nil {
		log.Error().Err(err).Str("user", user.Name).Msg("Token signing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"expires": fmt.Sprintf("%.0f minutes", s.issuer.TTL().Minutes()),
	})
}

func (s *Server) handleGridTimeseries(c *gin.Context) {
	var req gridTimeseriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body is not valid JSON"})
		return
	}
	if missing := missingFields(map[string]bool{
		"dataset":  req.Dataset == nil,
		"variable": req.Variable == nil,
		"lat":      req.Lat == nil,
		"lng":      req.Lng == nil,
	}); missing != "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing required fields: " + missing})
		return
	}
	dataset, variable := *req.Dataset, *req.Variable
	lat, lng := *req.Lat, *req.Lng

	month, day, err := dateFilter(dataset, req.LayerDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "layerDate is not a valid datetime"})
		return
	}

	gridDir := s.gridDir(dataset, variable, req.Climate)
	if _, err := os.Stat(gridDir); err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	results, err := s.scanner.Scan(c.Request.Context(), gridDir, ".tif", lat, lng, month, day)
	if err != nil {
		log.Error().Err(err).Str("dir", gridDir).Msg("Raster scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	if req.Climate && req.ClimatePeriod != "" {
		results = filterByPeriod(results, req.ClimatePeriod)
	}
	if len(results) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	envelopes, err := timeseries.LoadEnvelopeTable(s.envelopePath(dataset, variable, req.Climate))
	if err != nil {
		if os.IsNotExist(err) {
			c.Status(http.StatusNoContent)
			return
		}
		log.Error().Err(err).Str("dataset", dataset).Str("variable", variable).
			Msg("Envelope table load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	series, err := timeseries.Assemble(results, variable, month, envelopes)
	if err != nil {
		log.Error().Err(err).Str("dataset", dataset).Msg("Timeseries assembly failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	if series == nil {
		c.Status(http.StatusNoContent)
		return
	}

	altitude, err := s.extractor.Extract(s.cfg.DEMPath, lat, lng)
	if err != nil {
		log.Warn().Err(err).Str("dem", s.cfg.DEMPath).Msg("Altitude lookup failed")
		altitude = nil
	}

	c.JSON(http.StatusOK, timeseries.BuildResponse(series, altitude))
}

func (s *Server) handleRasterStats(c *gin.Context) {
	var req rasterStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body is not valid JSON"})
		return
	}
	if missing := missingFields(map[string]bool{
		"dataset":           req.Dataset == nil,
		"variable":          req.Variable == nil,
		"selectedLayerName": req.SelectedLayerName == nil,
	}); missing != "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing required fields: " + missing})
		return
	}

	path := filepath.Join(
		s.gridDir(*req.Dataset, *req.Variable, req.Climate),
		*req.SelectedLayerName+".tif",
	)
	if _, err := os.Stat(path); err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	summary, err := raster.Summarize(path)
	if err != nil {
		log.Error().Err(err).Str("layer", path).Msg("Raster summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dataset": *req.Dataset,
		"layer":   *req.SelectedLayerName,
		"min":     summary.Min,
		"max":     summary.Max,
		"mean":    summary.Mean,
	})
}

func (s *Server) handleAnnualComparison(c *gin.Context) {
	if s.comparison == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "annual comparison is not configured"})
		return
	}

	stationRaw := c.Query("station_id")
	variable := c.Query("variable")
	period := c.Query("period")
	if missing := missingFields(map[string]bool{
		"station_id": stationRaw == "",
		"variable":   variable == "",
		"period":     period == "",
	}); missing != "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing required parameters: " + missing})
		return
	}
	stationID, err := strconv.Atoi(stationRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "station_id must be an integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	docs, err := s.comparison.Fetch(ctx, stationID, variable, period)
	if err != nil {
		log.Error().Err(err).Int("station_id", stationID).Msg("Annual comparison query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	if len(docs) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": docs})
}

// gridDir resolves {root}[/climate]/{dataset}/{variable}.
func (s *Server) gridDir(dataset, variable string, climate bool) string {
	if climate {
		return filepath.Join(s.cfg.DatahubRoot, "climate", dataset, variable)
	}
	return filepath.Join(s.cfg.DatahubRoot, dataset, variable)
}

// envelopePath resolves {root}/statistics[/climate]/{dataset}/{variable}/
// geotiff_metrics_timeseries.csv.
func (s *Server) envelopePath(dataset, variable string, climate bool) string {
	if climate {
		return filepath.Join(s.cfg.DatahubRoot, "statistics", "climate", dataset, variable, envelopeFileName)
	}
	return filepath.Join(s.cfg.DatahubRoot, "statistics", dataset, variable, envelopeFileName)
}

// dateFilter derives the month or day selector from layerDate. Whether
// the dataset is daily or monthly is encoded in its name: the second
// rune of the second-to-last dash segment ("spartacus-v2-1m-1km" is
// monthly).
func dateFilter(dataset, layerDate string) (month, day *int, err error) {
	if layerDate == "" {
		return nil, nil, nil
	}
	ts, err := time.ParseInLocation(timeseries.DateFormat, layerDate, time.UTC)
	if err != nil {
		return nil, nil, err
	}

	switch dateCategory(dataset) {
	case 'd':
		d := ts.Day()
		day = &d
	case 'm':
		m := int(ts.Month())
		month = &m
	}
	return month, day, nil
}

func dateCategory(dataset string) byte {
	parts := strings.Split(dataset, "-")
	if len(parts) < 2 {
		return 0
	}
	seg := parts[len(parts)-2]
	if len(seg) < 2 {
		return 0
	}
	return seg[1]
}

// filterByPeriod keeps only climatology layers whose filename mentions
// the requested reference period.
func filterByPeriod(results []raster.Result, period string) []raster.Result {
	out := results[:0]
	for _, r := range results {
		if strings.Contains(filepath.Base(r.Path), period) {
			out = append(out, r)
		}
	}
	return out
}

func missingFields(checks map[string]bool) string {
	var missing []string
	for _, name := range []string{
		"dataset", "variable", "lat", "lng",
		"selectedLayerName", "station_id", "period",
	} {
		if checks[name] {
			missing = append(missing, name)
		}
	}
	return strings.Join(missing, ", ")
}
