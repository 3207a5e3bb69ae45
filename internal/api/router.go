// Package api exposes the control surface over HTTP: status snapshots,
// wake/shelve actions, the audit trail, and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/openwake/openwake/internal/action"
	"github.com/openwake/openwake/internal/auth"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/internal/metrics"
)

// Server holds the API server dependencies.
type Server struct {
	echo    *echo.Echo
	manager *action.Manager
	cfg     *config.Config
}

// NewServer creates a new API server with all routes configured.
func NewServer(mgr *action.Manager, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		manager: mgr,
		cfg:     cfg,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health check and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Anyone who can reach the page may wake an instance; shelving and the
	// audit trail are guarded by the control token.
	e.GET("/targets", s.listTargets)
	e.GET("/targets/:id", s.getTarget)
	e.POST("/targets/:id/unshelve", s.unshelveTarget)

	guarded := e.Group("", auth.ControlTokenMiddleware(cfg.App.ControlToken))
	guarded.POST("/targets/:id/shelve", s.shelveTarget)
	guarded.GET("/events", s.listEvents)

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}
