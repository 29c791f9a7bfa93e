// Package api provides the HTTP adapter for Lectern: document upload and
// submission, job status with live progress, questions and scope deletion.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ErrMissingService is returned when a required service is not provided.
var ErrMissingService = errors.New("api: ask and ingestion services are required")

// ProgressFeed streams job progress events.
type ProgressFeed interface {
	// Subscribe returns events for jobID and a function that ends the
	// subscription and closes the channel.
	Subscribe(jobID string, buffer int) (<-chan domain.ProgressEvent, func())
}

// TaskReporter reports the state of background tasks.
type TaskReporter interface {
	Tasks() []domain.TaskState
}

// Ports aggregates the services the HTTP adapter drives.
type Ports struct {
	Ask       driving.AskService
	Ingestion driving.IngestionService

	// Upload is optional. Without it POST /documents/upload is not served.
	Upload driving.UploadService

	// Progress is optional. Without it GET /jobs/:id/events is not served.
	Progress ProgressFeed

	// Tasks is optional. With it GET /health lists background tasks.
	Tasks TaskReporter
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Ask == nil || p.Ingestion == nil {
		return ErrMissingService
	}
	return nil
}

// DefaultHeartbeat is the SSE keep-alive interval used when none is set.
const DefaultHeartbeat = 15 * time.Second

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string

	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Server is the HTTP server.
type Server struct {
	ports  *Ports
	cfg    Config
	engine *gin.Engine
}

// NewServer creates a server with routes registered.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(CORS(cfg.AllowedOrigins))
	if ports.Upload != nil {
		// Multipart framing on top of the file itself.
		engine.Use(MaxBodySize(ports.Upload.MaxBytes() + 1<<20))
	}

	s := &Server{ports: ports, cfg: cfg, engine: engine}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
