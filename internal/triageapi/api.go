// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/okapihealth/okapi/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	CreateEncounter(ctx context.Context, enc *triage.Encounter) (*triage.Encounter, error)
	GetEncounter(ctx context.Context, id string) (*triage.Encounter, []triage.Followup, bool, error)
	AddFollowups(ctx context.Context, encounterID string, followups []triage.Followup) ([]string, error)
	Triage(ctx context.Context, encounterID string) (*triage.Result, error)
	GetResult(ctx context.Context, id string) (*triage.Result, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger zerolog.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger zerolog.Logger, svc TriageService) *API {
	if svc == nil {
		panic("triage service is required")
	}
	return &API{
		logger: logger.With().Str("component", "triageapi").Logger(),
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/encounters", a.handleCreateEncounter)
		r.Get("/encounters/{id}", a.handleGetEncounter)
		r.Post("/encounters/{id}/followups", a.handleAddFollowups)
		r.Post("/encounters/{id}/triage", a.handleTriage)
		r.Get("/triage/{id}", a.handleGetResult)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto the API's error envelope.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, triage.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
