package triageapi

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("okapi.encounter.id", id))

	res, err := a.svc.Triage(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("okapi.triage.id", res.ID),
		attribute.String("okapi.triage.risk_tier", string(res.RiskTier)),
		attribute.Bool("okapi.triage.used_fallback", res.UsedFallback),
		attribute.Bool("okapi.triage.danger_override", res.DangerOverride),
	)

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("okapi.triage.id", id))

	res, ok, err := a.svc.GetResult(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("okapi.triage.risk_tier", string(res.RiskTier)))

	writeJSON(w, http.StatusOK, res)
}
