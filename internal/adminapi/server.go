package adminapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the admin/observability HTTP server, grounded on the teacher's
// internal/api.Server. Unlike the teacher's management API it is
// loopback-only and off by default (spec.md Non-goal: no remote management
// plane) — Host/Port come straight from config.AdminAPIConfig, which the
// caller is expected to default to 127.0.0.1.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	handler    *Handler
	httpServer *http.Server
}

// New builds a Server bound to host:port. It does not start listening;
// call Run.
func New(host string, port int, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	h := NewHandler()
	registerRoutes(engine, h)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, handler: h, httpServer: httpServer}
}

// Handler returns the Server's Handler so the caller can wire
// SetDNSStatsFunc/SetCacheStatsFunc before traffic starts.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
