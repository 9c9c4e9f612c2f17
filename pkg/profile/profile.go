// Package profile manages audience questionnaires and the generated
// target-audience profiles that jobs pass to the clip analysis stage.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/pkg/provider"
)

// ErrNotFound indicates no questionnaire or profile exists for the id.
var ErrNotFound = errors.New("profile record not found")

// Questionnaire holds the raw answers an operator supplies about a show
// and its listeners.
type Questionnaire struct {
	ID          string            `json:"questionnaire_id"`
	PodcastName string            `json:"podcast_name"`
	HostNames   []string          `json:"host_names,omitempty"`
	Answers     map[string]string `json:"answers"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Validate checks the minimum inputs the generator needs.
func (q *Questionnaire) Validate() error {
	if strings.TrimSpace(q.PodcastName) == "" {
		return fmt.Errorf("podcast name is required")
	}
	if len(q.Answers) == 0 {
		return fmt.Errorf("at least one questionnaire answer is required")
	}
	return nil
}

// Profile is a generated audience narrative, referenced by jobs via
// profile_id.
type Profile struct {
	ID              string    `json:"profile_id"`
	QuestionnaireID string    `json:"questionnaire_id,omitempty"`
	PodcastName     string    `json:"podcast_name"`
	Narrative       string    `json:"narrative"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists questionnaires and profiles.
type Store interface {
	PutQuestionnaire(q *Questionnaire) error
	GetQuestionnaire(id string) (*Questionnaire, error)

	PutProfile(p *Profile) error
	GetProfile(id string) (*Profile, error)
	ListProfiles() ([]*Profile, error)
}

// Service coordinates questionnaire intake and profile generation.
type Service struct {
	store      Store
	summarizer provider.Summarizer
	log        *zap.Logger
}

func NewService(store Store, summarizer provider.Summarizer, log *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, summarizer: summarizer, log: log}, nil
}

// SaveQuestionnaire validates and persists the answers, assigning an id.
func (s *Service) SaveQuestionnaire(_ context.Context, q *Questionnaire) (*Questionnaire, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.ID = uuid.New().String()
	q.CreatedAt = time.Now().UTC()
	if err := s.store.PutQuestionnaire(q); err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuestionnaire returns the stored answers or ErrNotFound.
func (s *Service) GetQuestionnaire(_ context.Context, id string) (*Questionnaire, error) {
	return s.store.GetQuestionnaire(id)
}

// Generate runs the summarizer over a stored questionnaire and persists
// the resulting profile.
func (s *Service) Generate(ctx context.Context, questionnaireID string) (*Profile, error) {
	q, err := s.store.GetQuestionnaire(questionnaireID)
	if err != nil {
		return nil, err
	}

	narrative, err := s.summarizer.GenerateProfile(ctx, provider.ProfileRequest{
		PodcastName: q.PodcastName,
		HostNames:   q.HostNames,
		Answers:     q.Answers,
	})
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:              uuid.New().String(),
		QuestionnaireID: q.ID,
		PodcastName:     q.PodcastName,
		Narrative:       narrative,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.PutProfile(p); err != nil {
		return nil, err
	}
	s.log.Info("audience profile generated",
		zap.String("profile_id", p.ID),
		zap.String("questionnaire_id", q.ID))
	return p, nil
}

// Get returns a stored profile or ErrNotFound.
func (s *Service) Get(_ context.Context, id string) (*Profile, error) {
	return s.store.GetProfile(id)
}

// List returns all stored profiles, newest first.
func (s *Service) List(_ context.Context) ([]*Profile, error) {
	return s.store.ListProfiles()
}
