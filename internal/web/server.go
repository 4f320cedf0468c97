// Package web serves the browser UI for the image analysis pipeline.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/raine/image-analysis-app/internal/metrics"
	"github.com/raine/image-analysis-app/internal/pipeline"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Steps is the pipeline as seen by the UI.
type Steps interface {
	Generate(ctx context.Context, prompt string) (*pipeline.GenerateResult, error)
	Caption(ctx context.Context) (string, error)
	Detect(ctx context.Context) (*pipeline.DetectResult, error)
	Session() *pipeline.Session
}

// Server is the browser-facing HTTP server.
type Server struct {
	echo      *echo.Echo
	steps     Steps
	metrics   *metrics.Collector
	rateLimit RateLimitConfig
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits how often one client may run pipeline steps.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(s *Server) {
		s.rateLimit = cfg
	}
}

// NewServer creates a server with all routes registered.
func NewServer(steps Steps, m *metrics.Collector, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, steps: steps, metrics: m}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger)
	s.RegisterRoutes(e)

	return s
}

// RegisterRoutes registers the UI and operational routes on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	var stepMiddleware []echo.MiddlewareFunc
	if s.rateLimit.PerMinute > 0 {
		stepMiddleware = append(stepMiddleware, RateLimiter(s.rateLimit))
	}

	e.GET("/", s.Index)
	e.POST("/generate", s.Generate, stepMiddleware...)
	e.POST("/caption", s.Caption, stepMiddleware...)
	e.POST("/detect", s.Detect, stepMiddleware...)
	e.GET("/image", s.Image)
	e.GET("/healthz", s.Health)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("web server listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("stopping web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		status := c.Response().Status
		s.metrics.RecordHTTPRequest(req.Method, c.Path(), status)
		log.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
		return nil
	}
}
