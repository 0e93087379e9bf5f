// Package server exposes document ingestion and question answering over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"docchat/internal/index"
	"docchat/internal/rag"
	"docchat/internal/store"

	"github.com/gin-gonic/gin"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

const maxUploadMemory = 32 << 20

// Ingester builds the index and searches it.
type Ingester interface {
	Ingest(ctx context.Context, batch index.Batch) (*index.Result, error)
	Search(ctx context.Context, query string, k int) ([]store.SearchResult, error)
	Stats() (store.IndexInfo, error)
}

// Asker answers questions from the index.
type Asker interface {
	Ask(ctx context.Context, question string, maxHistory int) (*rag.Answer, error)
}

// History is the stored conversation.
type History interface {
	Read(ctx context.Context, limit int) ([]store.Message, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Config wires the handlers to the application.
type Config struct {
	Indexer    Ingester
	Pipeline   Asker
	History    History
	MaxHistory int
}

// Server routes API requests. Ingestion replaces the whole index, so
// uploads are serialized.
type Server struct {
	cfg      Config
	router   *gin.Engine
	ingestMu sync.Mutex
}

// New builds the router. Call gin.SetMode before New to silence debug output.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = maxUploadMemory

	v1 := r.Group(BasePath)
	{
		v1.GET("/index", s.getIndex)
		v1.POST("/documents", s.postDocuments)
		v1.POST("/ask", s.postAsk)
		v1.GET("/search", s.getSearch)
		v1.GET("/history", s.getHistory)
		v1.DELETE("/history", s.deleteHistory)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
