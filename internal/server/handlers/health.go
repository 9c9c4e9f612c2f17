package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pursuelabs/segmentd/internal/apierr"
)

// Checker probes one dependency for the health endpoints.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body returned by the health endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered dependency checks and renders the
// aggregate status.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]Checker
}

const checkTimeout = 2 * time.Second

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named dependency probe.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		names = append(names, name)
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checkers[name].CheckHealth(checkCtx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case checkCtx.Err() != nil:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus aggregates per-check results: any unhealthy
// check fails the whole probe, timeouts only degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves GET /health.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		details := map[string]any{"checks": checks}
		apierr.RespondDetails(w, r, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "one or more dependency checks failed", details)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LiveHandler serves GET /health/live: process-up only, no dependency
// checks.
func (m *HealthManager) LiveHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: m.version})
}

// ReadyHandler serves GET /health/ready with the full dependency sweep.
func (m *HealthManager) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}
