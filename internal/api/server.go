// SPDX-License-Identifier: MIT

// Package api serves both control planes of a node: the node-to-node
// protocol every camera answers (record, status, sync) and the operator
// endpoints under /api that only make sense on the master.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/config"
	"github.com/fieldrig/camsyncd/internal/coordinator"
	"github.com/fieldrig/camsyncd/internal/health"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/offload"
	"github.com/fieldrig/camsyncd/internal/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server wires the HTTP surface over the daemon's collaborators.
type Server struct {
	cfg      config.AppConfig
	coord    *coordinator.Coordinator
	reg      *registry.Registry
	tracker  *clocksync.Tracker
	pipeline *offload.Pipeline
	healthMg *health.Manager
	logger   zerolog.Logger
}

// New creates the API server.
func New(cfg config.AppConfig, coord *coordinator.Coordinator, reg *registry.Registry, tracker *clocksync.Tracker, pipeline *offload.Pipeline, healthMg *health.Manager) *Server {
	return &Server{
		cfg:      cfg,
		coord:    coord,
		reg:      reg,
		tracker:  tracker,
		pipeline: pipeline,
		healthMg: healthMg,
		logger:   log.WithComponent("api"),
	}
}

// Router builds the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestLogger)

	// Probes and metrics stay outside rate limiting.
	r.Get("/healthz", s.healthMg.ServeHealth)
	r.Get("/readyz", s.healthMg.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	// Node-to-node plane. Every camera serves these; fan-out peers and the
	// liveness monitor are the callers.
	r.Post("/record/start", s.handleRecordStart)
	r.Post("/record/stop", s.handleRecordStop)
	r.Post("/selftest", s.handleSelfTest)
	r.Get("/status", s.handleStatus)
	r.Get("/sync/probe", s.handleSyncProbe)
	r.Get("/sync/status", s.handleSyncStatus)
	r.Post("/sync/trigger", s.handleSyncTrigger)

	// Operator plane. Mutating routes are rate limited per client IP.
	r.Route("/api", func(r chi.Router) {
		r.Get("/peers", s.handlePeersList)
		r.Get("/preflight", s.handlePreflight)
		r.Get("/status/aggregate", s.handleAggregateStatus)
		r.Get("/sessions", s.handleSessionsList)
		r.Get("/sessions/{sessionID}", s.handleSessionGet)
		r.Get("/offload/jobs", s.handleOffloadJobs)

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Post("/peers", s.handlePeerAdd)
			r.Delete("/peers/{cameraID}", s.handlePeerRemove)
			r.Post("/record/start-all", s.handleStartAll)
			r.Post("/record/stop-all", s.handleStopAll)
			r.Post("/selftest-all", s.handleSelfTestAll)
			r.Post("/offload/upload-now", s.handleUploadNow)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
