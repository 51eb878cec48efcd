package triageapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/okapihealth/okapi/internal/triage"
)

type createEncounterRequest struct {
	Age      int            `json:"age"`
	Sex      string         `json:"sex"`
	Location string         `json:"location"`
	Symptoms string         `json:"symptoms"`
	Vitals   *triage.Vitals `json:"vitals,omitempty"`
	Channel  string         `json:"channel"`
}

func (a *API) handleCreateEncounter(w http.ResponseWriter, r *http.Request) {
	var req createEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	enc, err := a.svc.CreateEncounter(r.Context(), &triage.Encounter{
		Age:      req.Age,
		Sex:      triage.Sex(req.Sex),
		Location: req.Location,
		Symptoms: req.Symptoms,
		Vitals:   req.Vitals,
		Channel:  req.Channel,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("okapi.encounter.id", enc.ID))

	writeJSON(w, http.StatusCreated, enc)
}

type encounterResponse struct {
	Encounter *triage.Encounter `json:"encounter"`
	Followups []triage.Followup `json:"followups"`
}

func (a *API) handleGetEncounter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("okapi.encounter.id", id))

	enc, followups, ok, err := a.svc.GetEncounter(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	if followups == nil {
		followups = []triage.Followup{}
	}

	writeJSON(w, http.StatusOK, encounterResponse{Encounter: enc, Followups: followups})
}

type addFollowupsRequest struct {
	Followups []triage.Followup `json:"followups"`
}

type addFollowupsResponse struct {
	Questions []string `json:"questions"`
}

func (a *API) handleAddFollowups(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req addFollowupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("okapi.encounter.id", id),
		attribute.Int("okapi.followups.count", len(req.Followups)),
	)

	questions, err := a.svc.AddFollowups(r.Context(), id, req.Followups)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, addFollowupsResponse{Questions: questions})
}
