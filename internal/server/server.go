// Package server exposes the pulse and targeted-search operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 10 * time.Minute
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// New creates a gin engine with all routes configured.
func New(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(h.logger))
	r.Use(gin.Recovery())

	setupRoutes(r, h)
	return r
}

func setupRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.GET("/pulse", h.Pulse)
		api.GET("/search", h.Search)
		api.GET("/reports", h.ListReports)
		api.GET("/reports/latest", h.LatestReport)
		api.GET("/reports/:id", h.GetReport)
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      New(h),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	h.logger.Info("server stopped")
	return nil
}
