package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/woodlandmigrate/internal/common"
)

const readHeaderTimeout = 5 * time.Second

// ProgressFunc reports the current run progress as a JSON-serialisable value.
type ProgressFunc func(ctx context.Context) (any, error)

// Server serves /metrics, /progress and /healthz while a run is active.
type Server struct {
	srv    *http.Server
	engine *gin.Engine
	logger *common.Logger
}

// NewServer builds the HTTP server. progress may be nil.
func NewServer(addr string, m *Metrics, progress ProgressFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if reg := m.Registry(); reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})))
	}
	engine.GET("/progress", func(c *gin.Context) {
		if progress == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "progress not available"})
			return
		}
		v, err := progress(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, v)
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		engine: engine,
		logger: common.GetLogger().WithComponent("metrics-server"),
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	s.logger.Info("metrics server listening", "addr", addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return addr, nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
