// Package api provides the HTTP surface for the compile orchestrator
// (spec.md §6), built on Echo v5 following the teacher's Server/Set*
// wiring shape.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/google/uuid"

	"github.com/brandbrain/compiler/pkg/compile"
	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/queue"
	"github.com/brandbrain/compiler/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	echo         *echo.Echo
	httpServer   *http.Server
	dbClient     *database.Client
	orchestrator *compile.Orchestrator
	reader       *compile.Reader
	workerPool   *queue.WorkerPool // nil when the API process doesn't embed a pool
}

// NewServer creates a new API server with Echo v5, wiring the compile
// orchestrator and read path (spec.md §6's HTTP surface).
func NewServer(dbClient *database.Client, orchestrator *compile.Orchestrator, reader *compile.Reader) *Server {
	e := echo.New()
	s := &Server{
		echo:         e,
		dbClient:     dbClient,
		orchestrator: orchestrator,
		reader:       reader,
	}
	s.setupRoutes()
	return s
}

// SetWorkerPool attaches a WorkerPool whose health is surfaced on
// GET /health, for deployments that embed the worker in the API process.
func (s *Server) SetWorkerPool(pool *queue.WorkerPool) {
	s.workerPool = pool
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	brands := s.echo.Group("/api/brands/:id/brandbrain")
	brands.POST("/compile", s.compileHandler)
	brands.GET("/compile/:run/status", s.statusHandler)
	brands.GET("/latest", s.latestHandler)
	brands.GET("/history", s.historyHandler)
	brands.GET("/overrides", s.getOverridesHandler)
	brands.PATCH("/overrides", s.patchOverridesHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "unhealthy"})
	}

	resp := &HealthResponse{Status: "healthy", Version: version.Full(), PendingJobs: dbHealth.PendingJobs}
	if s.workerPool != nil {
		h := s.workerPool.Health()
		resp.WorkerPool = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func parseUUIDParam(c *echo.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return id, nil
}
