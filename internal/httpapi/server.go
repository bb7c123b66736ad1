// Package httpapi exposes the board and run queue over a local JSON API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/madhatter5501/promptflow"
	"github.com/madhatter5501/promptflow/kanban"
)

// Enqueuer schedules runs. *promptflow.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job promptflow.Job) (string, error)
}

// Server serves the API for one repository.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// NewServer creates a server for the board in cwd.
func NewServer(cwd string, board kanban.BoardStore, queue Enqueuer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	s := &Server{echo: e, logger: logger}
	e.Use(s.withLogging)
	Register(e, cwd, board, queue, logger)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// withLogging logs each request.
func (s *Server) withLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Debug("HTTP request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"duration", time.Since(start))
		return err
	}
}
