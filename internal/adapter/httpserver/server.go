package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/domain"
)

type reportService interface {
	GenerateReport(ctx context.Context, in app.ReportRequest) (*app.Report, error)
	Settings(ctx context.Context, guildID string) domain.GuildSettings
	UpdateSettings(ctx context.Context, settings domain.GuildSettings) (domain.GuildSettings, error)
}

// Options configure the HTTP surface.
type Options struct {
	Port           string
	APIToken       string // empty leaves the /api routes unregistered
	APIRatePerSec  float64
	APIBurst       int
	HealthChecks   []HealthCheck
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
}

type Server struct {
	echo *echo.Echo
	port string

	reports        reportService
	healthChecks   []HealthCheck
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	apiLimiter     echo.MiddlewareFunc
	apiAuth        echo.MiddlewareFunc
	startTime      time.Time
}

func NewServer(reports reportService, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		port:           opts.Port,
		reports:        reports,
		healthChecks:   opts.HealthChecks,
		metricsHandler: opts.MetricsHandler,
		httpMetrics:    opts.HTTPMetrics,
		startTime:      time.Now(),
	}
	if opts.APIToken != "" {
		srv.apiAuth = newTokenAuth(opts.APIToken)
	}
	if opts.APIRatePerSec > 0 {
		srv.apiLimiter = newRateLimiter(opts.APIRatePerSec, max(opts.APIBurst, 1))
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
