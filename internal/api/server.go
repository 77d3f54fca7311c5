// Package api exposes the pipelines over HTTP: multipart uploads that start
// jobs, poll and download endpoints, and an SSE stream of job events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

// ConversionStarter starts conversion jobs.
type ConversionStarter interface {
	Convert(ctx context.Context, raw []byte, fileName string) string
}

// ValidationStarter starts validation jobs.
type ValidationStarter interface {
	Validate(ctx context.Context, model, ruleSpec []byte, fileName string) string
}

// JobReader reads job records.
type JobReader interface {
	Get(id string) (jobs.Job, bool)
	Len() int
}

// ArtifactReader fetches stored artifacts.
type ArtifactReader interface {
	GetFile(id string) ([]byte, store.Metadata, error)
	GetCachedIfc(validationJobID string) ([]byte, store.Metadata, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token protecting the API. Empty disables auth.
	APIKey string
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	conversion ConversionStarter
	validation ValidationStarter
	jobs       JobReader
	artifacts  ArtifactReader
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates an API server instance.
func New(config Config, conversion ConversionStarter, validation ValidationStarter, jobReader JobReader, artifacts ArtifactReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		conversion: conversion,
		validation: validation,
		jobs:       jobReader,
		artifacts:  artifacts,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Minute, // large model uploads
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/fragments", s.handleConvert)
			r.Post("/fragments/from-job/{validationJobId}", s.handleConvertFromJob)
			r.Get("/fragments/{fileId}", s.handleDownload)
			r.Post("/ids/check", s.handleIdsCheck)
			r.Get("/ids/results/{fileId}", s.handleDownload)
			r.Get("/jobs/{jobId}", s.handleGetJob)
		})

		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
