// Package server exposes the climate raster API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wetterklima/gridserver/internal/comparison"
	"github.com/wetterklima/gridserver/internal/config"
	"github.com/wetterklima/gridserver/internal/raster"
	"github.com/wetterklima/gridserver/internal/users"
)

// Server bundles the router and its collaborators.
type Server struct {
	cfg        *config.Config
	scanner    *raster.Scanner
	extractor  *raster.Extractor
	users      *users.Store
	issuer     *users.TokenIssuer
	comparison *comparison.Store
	engine     *gin.Engine
}

// New constructs the server with routes and middleware. The user store
// and comparison store may be nil; their routes degrade accordingly.
func New(cfg *config.Config, userStore *users.Store, comparisonStore *comparison.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recovery())
	engine.Use(requestLogger())

	extractor := raster.NewExtractor()
	s := &Server{
		cfg:        cfg,
		scanner:    raster.NewScanner(extractor, cfg.ScanWorkers, raster.Strategy(cfg.ScanStrategy)),
		extractor:  extractor,
		users:      userStore,
		comparison: comparisonStore,
		engine:     engine,
	}
	if cfg.SecretKey != "" {
		s.issuer = users.NewTokenIssuer(cfg.SecretKey, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	}

	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/test", s.handleTest)
	s.engine.GET("/login", s.handleLogin)

	data := s.engine.Group("/")
	if s.issuer != nil {
		data.Use(tokenRequired(s.issuer))
	}
	data.POST("/gridTimeseries", s.handleGridTimeseries)
	data.POST("/rasterStats", s.handleRasterStats)
	data.GET("/annualComparison", s.handleAnnualComparison)
}

// tokenRequired guards data routes behind the x-access-token header.
func tokenRequired(issuer *users.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("x-access-token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"message": "a valid token is missing"})
			return
		}
		if _, err := issuer.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"message": "token is invalid"})
			return
		}
		c.Next()
	}
}

// requestLogger logs every request with structured fields.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	}
}

// recovery turns panics into logged plain 500 responses. The detail
// stays in the log, never in the response body.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("Handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"message": "internal server error"})
	})
}
