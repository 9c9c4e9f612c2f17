package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pursuelabs/segmentd/internal/apierr"
	"github.com/pursuelabs/segmentd/pkg/job"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// timecode accepts either a JSON number of seconds or a "MM:SS" /
// "HH:MM:SS" string.
type timecode float64

func (t *timecode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		secs, err := transcript.ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = timecode(secs)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = timecode(f)
	return nil
}

type createJobRequest struct {
	SourceURL    string `json:"source_url,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	PodcastName  string `json:"podcast_name,omitempty"`
	ProfileID    string `json:"profile_id,omitempty"`
}

// CreateJob handles POST /jobs. It allocates the job and returns
// immediately; callers poll GetJob until a terminal status.
func (a *API) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid request body: "+err.Error())
		return
	}

	createReq := job.CreateRequest{
		Source: job.Source{
			URL:          strings.TrimSpace(req.SourceURL),
			ArtifactPath: strings.TrimSpace(req.ArtifactPath),
		},
		PodcastName: req.PodcastName,
		ProfileID:   req.ProfileID,
	}
	if err := createReq.Source.Validate(); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, err.Error())
		return
	}

	if req.ProfileID != "" && a.deps.Profiles != nil {
		p, err := a.deps.Profiles.Get(r.Context(), req.ProfileID)
		if err != nil {
			apierr.RespondWithError(w, r, fmt.Errorf("resolve profile %s: %w", req.ProfileID, err))
			return
		}
		createReq.AudienceProfile = p.Narrative
	}

	created, err := a.deps.Jobs.Create(r.Context(), createReq)
	if err != nil {
		if errIsValidation(err) {
			apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, err.Error())
			return
		}
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, created)
}

// errIsValidation reports submission errors the client can fix, as
// opposed to infrastructure failures.
func errIsValidation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "required") ||
		strings.Contains(msg, "mutually exclusive") ||
		strings.Contains(msg, "unparseable url") ||
		strings.Contains(msg, "not enabled")
}

// GetJob handles GET /jobs/{jobID}: the polling endpoint. It reads a
// snapshot and never blocks on the pipeline.
func (a *API) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := a.deps.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// ListJobs handles GET /jobs.
func (a *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.deps.Jobs.List(r.Context())
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type exportClip struct {
	StartTimestamp string   `json:"start_timestamp"`
	EndTimestamp   string   `json:"end_timestamp"`
	TitleOptions   []string `json:"title_options"`
	Excerpt        string   `json:"excerpt,omitempty"`
	Rationale      string   `json:"rationale,omitempty"`
}

// ExportJob handles GET /jobs/{jobID}/export: a downloadable rendering
// of the clip batch.
func (a *API) ExportJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, err := a.deps.Jobs.Export(r.Context(), id)
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}

	clips := make([]exportClip, len(j.Clips))
	for i, c := range j.Clips {
		clips[i] = exportClip{
			StartTimestamp: c.StartTimestamp(),
			EndTimestamp:   c.EndTimestamp(),
			TitleOptions:   c.TitleOptions,
			Excerpt:        c.Excerpt,
			Rationale:      c.Rationale,
		}
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "clips-"+id+".json"))
	respondJSON(w, http.StatusOK, map[string]any{
		"job_id":       j.ID,
		"podcast_name": j.PodcastName,
		"clips":        clips,
	})
}

type adjustClipRequest struct {
	Start   timecode `json:"start"`
	End     timecode `json:"end"`
	Excerpt string   `json:"excerpt,omitempty"`
}

// AdjustClip handles POST /jobs/{jobID}/clips/{clipIndex}: overwrites
// one candidate's boundaries without touching the job status.
func (a *API) AdjustClip(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "clipIndex"))
	if err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "clip index must be an integer")
		return
	}

	var req adjustClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid request body: "+err.Error())
		return
	}

	j, err := a.deps.Jobs.SaveClipAdjustment(r.Context(), chi.URLParam(r, "jobID"),
		index, float64(req.Start), float64(req.End), req.Excerpt)
	if err != nil {
		if strings.Contains(err.Error(), "invalid clip bounds") {
			apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, err.Error())
			return
		}
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// CancelJob handles POST /jobs/{jobID}/cancel.
func (a *API) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := a.deps.Jobs.Cancel(r.Context(), id); err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": "cancelling",
	})
}
