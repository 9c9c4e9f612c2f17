// Package handlers implements the HTTP API surface: job submission and
// polling, resumable chunked uploads, and audience profiles.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/pkg/job"
	"github.com/pursuelabs/segmentd/pkg/profile"
	"github.com/pursuelabs/segmentd/pkg/upload"
)

// Deps are the services the handlers delegate to.
type Deps struct {
	Jobs     *job.Orchestrator
	Uploads  *upload.Manager
	Profiles *profile.Service
	Log      *zap.Logger
}

// API bundles all route handlers over a shared dependency set.
type API struct {
	deps Deps
}

// NewAPI wires the handlers. Log defaults to a no-op logger.
func NewAPI(deps Deps) *API {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &API{deps: deps}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
