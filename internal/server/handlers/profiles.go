package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pursuelabs/segmentd/internal/apierr"
	"github.com/pursuelabs/segmentd/pkg/profile"
)

// SaveQuestionnaire handles POST /profiles/questionnaires.
func (a *API) SaveQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var q profile.Questionnaire
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid request body: "+err.Error())
		return
	}

	saved, err := a.deps.Profiles.SaveQuestionnaire(r.Context(), &q)
	if err != nil {
		if strings.Contains(err.Error(), "required") {
			apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, err.Error())
			return
		}
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// GetQuestionnaire handles GET /profiles/questionnaires/{questionnaireID}.
func (a *API) GetQuestionnaire(w http.ResponseWriter, r *http.Request) {
	q, err := a.deps.Profiles.GetQuestionnaire(r.Context(), chi.URLParam(r, "questionnaireID"))
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

type generateProfileRequest struct {
	QuestionnaireID string `json:"questionnaire_id"`
}

// GenerateProfile handles POST /profiles: runs the summarizer over a
// stored questionnaire.
func (a *API) GenerateProfile(w http.ResponseWriter, r *http.Request) {
	var req generateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid request body: "+err.Error())
		return
	}
	if req.QuestionnaireID == "" {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "questionnaire_id is required")
		return
	}

	p, err := a.deps.Profiles.Generate(r.Context(), req.QuestionnaireID)
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetProfile handles GET /profiles/{profileID}.
func (a *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.deps.Profiles.Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListProfiles handles GET /profiles.
func (a *API) ListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := a.deps.Profiles.List(r.Context())
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	if list == nil {
		list = []*profile.Profile{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": list})
}
