// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for the daemon.
// It supports Docker HEALTHCHECK and Kubernetes probes with per-component
// status detail.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldrig/camsyncd/internal/capture"
	"github.com/fieldrig/camsyncd/internal/clocksync"
	"github.com/fieldrig/camsyncd/internal/diskman"
	"github.com/fieldrig/camsyncd/internal/log"
	"github.com/fieldrig/camsyncd/internal/registry"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a health check (liveness probe).
// Returns healthy as long as the process is alive; verbose adds detail.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}

	if verbose && len(m.checkers) > 0 {
		resp.Checks = make(map[string]CheckResult)
		hasUnhealthy := false
		hasDegraded := false

		for _, checker := range m.checkers {
			result := checker.Check(ctx)
			resp.Checks[checker.Name()] = result

			switch result.Status {
			case StatusUnhealthy:
				hasUnhealthy = true
			case StatusDegraded:
				hasDegraded = true
			}
		}

		if hasUnhealthy {
			resp.Status = StatusUnhealthy
		} else if hasDegraded {
			resp.Status = StatusDegraded
		}
	}

	return resp
}

// Ready performs a readiness check: the node can take recording commands.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult)
	hasUnhealthy := false
	hasDegraded := false

	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
			resp.Ready = false
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		resp.Status = StatusUnhealthy
	} else if hasDegraded {
		resp.Status = StatusDegraded
	}

	return resp
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// CaptureChecker reports on the local camera.
type CaptureChecker struct {
	driver   capture.Driver
	maxTempC float64
}

// NewCaptureChecker creates a checker for camera presence and temperature.
func NewCaptureChecker(driver capture.Driver, maxTempC float64) *CaptureChecker {
	return &CaptureChecker{driver: driver, maxTempC: maxTempC}
}

func (c *CaptureChecker) Name() string { return "camera" }

func (c *CaptureChecker) Check(ctx context.Context) CheckResult {
	st, err := c.driver.Status(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !st.Detected {
		return CheckResult{Status: StatusUnhealthy, Error: "camera not detected"}
	}
	if st.TemperatureC > c.maxTempC {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("camera at %.1f°C, limit %.1f°C", st.TemperatureC, c.maxTempC),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "camera detected"}
}

// ClockChecker reports whether this node's clock is usable for
// synchronized starts.
type ClockChecker struct {
	tracker *clocksync.Tracker
}

// NewClockChecker creates a checker over the clock tracker.
func NewClockChecker(tracker *clocksync.Tracker) *ClockChecker {
	return &ClockChecker{tracker: tracker}
}

func (c *ClockChecker) Name() string { return "clock" }

func (c *ClockChecker) Check(ctx context.Context) CheckResult {
	st := c.tracker.Status()
	msg := fmt.Sprintf("offset %.2fms, confidence %s", st.OffsetMS, st.Confidence)
	switch {
	case st.Confidence == clocksync.ConfidenceError || st.Confidence == clocksync.ConfidenceTimeout:
		return CheckResult{Status: StatusDegraded, Message: msg, Error: "last sync attempt failed"}
	case !st.WithinTolerance:
		return CheckResult{Status: StatusDegraded, Message: msg, Error: "offset exceeds tolerance"}
	default:
		return CheckResult{Status: StatusHealthy, Message: msg}
	}
}

// StorageChecker reports free space on the spool volume.
type StorageChecker struct {
	disk         diskman.Manager
	minFreeBytes int64
}

// NewStorageChecker creates a checker against the configured floor.
func NewStorageChecker(disk diskman.Manager, minFreeBytes int64) *StorageChecker {
	return &StorageChecker{disk: disk, minFreeBytes: minFreeBytes}
}

func (c *StorageChecker) Name() string { return "storage" }

func (c *StorageChecker) Check(ctx context.Context) CheckResult {
	st, err := c.disk.Status(ctx)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	msg := fmt.Sprintf("%.1f GiB free, ~%.0f min of recording", float64(st.FreeBytes)/(1<<30), st.EstMinutesRemaining)
	if st.FreeBytes < c.minFreeBytes {
		return CheckResult{Status: StatusUnhealthy, Message: msg, Error: "free space below recording floor"}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// PeerChecker reports on fleet visibility. Only meaningful on the master;
// a follower registers no peer checker.
type PeerChecker struct {
	reg *registry.Registry
}

// NewPeerChecker creates a checker over the peer registry.
func NewPeerChecker(reg *registry.Registry) *PeerChecker {
	return &PeerChecker{reg: reg}
}

func (c *PeerChecker) Name() string { return "peers" }

func (c *PeerChecker) Check(ctx context.Context) CheckResult {
	peers := c.reg.Peers()
	online := 0
	for _, p := range peers {
		if p.Status == registry.StatusOnline || p.Status == registry.StatusRecording {
			online++
		}
	}
	msg := fmt.Sprintf("%d/%d peers reachable", online, len(peers))
	switch {
	case len(peers) == 0:
		return CheckResult{Status: StatusDegraded, Message: "no peers registered"}
	case online == 0:
		return CheckResult{Status: StatusUnhealthy, Message: msg, Error: "no peer reachable"}
	case online < len(peers):
		return CheckResult{Status: StatusDegraded, Message: msg}
	default:
		return CheckResult{Status: StatusHealthy, Message: msg}
	}
}
