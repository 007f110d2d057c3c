// Package server exposes ingestion and querying over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/service"
)

// Ingester ingests one uploaded file.
type Ingester interface {
	IngestFile(ctx context.Context, path string, session domain.SessionID) (service.IngestResult, error)
}

// Answerer answers a session-scoped question.
type Answerer interface {
	Answer(ctx context.Context, question string, session domain.SessionID) (service.Answer, error)
}

// ModelWarmer loads models and reports readiness.
type ModelWarmer interface {
	Warmup(ctx context.Context) map[string]bool
	Status() map[string]bool
}

// Cache is the clearable query cache.
type Cache interface {
	Clear()
	Len() int
}

// Config configures the HTTP server.
type Config struct {
	UploadDir       string
	ShutdownTimeout time.Duration
}

// Server holds the gin engine and its collaborators.
type Server struct {
	ingester Ingester
	answerer Answerer
	models   ModelWarmer
	cache    Cache
	cfg      Config
	log      logrus.FieldLogger
	engine   *gin.Engine
}

// New builds the router. cache may be nil.
func New(ing Ingester, ans Answerer, models ModelWarmer, cache Cache, cfg Config, log logrus.FieldLogger) *Server {
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join("data", "uploads")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{ingester: ing, answerer: ans, models: models, cache: cache, cfg: cfg, log: log}

	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/warmup", s.warmup)
	r.GET("/models/status", s.modelStatus)
	r.DELETE("/cache", s.clearCache)
	r.POST("/ingest/file", s.ingestFile)
	r.POST("/query/", s.query)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}

// ensureDir creates the per-session upload directory.
func (s *Server) ensureDir(session domain.SessionID) (string, error) {
	dir := filepath.Join(s.cfg.UploadDir, session.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
