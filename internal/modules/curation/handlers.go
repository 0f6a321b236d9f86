package curation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
)

// ContextProvider assembles the immutable inputs for one evaluation
type ContextProvider interface {
	EvalContext() (EvalContext, error)
}

// AdjustmentProvider yields the active lever adjustments for a scope
type AdjustmentProvider interface {
	AdjustmentsFor(scope domain.Scope) domain.LeverAdjustments
}

// Handlers contains HTTP handlers for the curation API
type Handlers struct {
	orchestrator *Orchestrator
	decisionRepo *DecisionRepository
	contexts     ContextProvider
	adjustments  AdjustmentProvider
	events       *events.Manager
	log          zerolog.Logger
}

// NewHandlers creates a new curation handlers instance
func NewHandlers(
	orchestrator *Orchestrator,
	decisionRepo *DecisionRepository,
	contexts ContextProvider,
	adjustments AdjustmentProvider,
	eventMgr *events.Manager,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		decisionRepo: decisionRepo,
		contexts:     contexts,
		adjustments:  adjustments,
		events:       eventMgr,
		log:          log.With().Str("handler", "curation").Logger(),
	}
}

// decisionResponse marks a served decision with its expiry state so an
// executor can never mistake a stale decision for a live one.
type decisionResponse struct {
	domain.Decision
	Expired bool `json:"expired"`
}

func (h *Handlers) respondDecision(w http.ResponseWriter, status int, d domain.Decision) {
	expired := d.Expired(time.Now())
	if expired {
		h.events.Emit(events.DecisionExpired, "curation", map[string]interface{}{
			"decision_id": d.DecisionID,
			"plan_id":     d.PlanID,
			"valid_until": d.ValidUntil,
		})
	}
	writeJSON(w, status, decisionResponse{Decision: d, Expired: expired})
}

// HandleEvaluate evaluates a candidate trading plan
// POST /api/curation/evaluate
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var plan domain.TradingPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		http.Error(w, "Invalid plan payload", http.StatusBadRequest)
		return
	}
	if plan.PlanID == "" {
		http.Error(w, "plan_id is required", http.StatusBadRequest)
		return
	}
	if !plan.ValidUntil.IsZero() && time.Now().After(plan.ValidUntil) {
		http.Error(w, "Plan has expired", http.StatusUnprocessableEntity)
		return
	}

	// Replays of an already-decided plan return the stored decision.
	if existing, err := h.decisionRepo.GetByPlanID(plan.PlanID); err != nil {
		h.log.Error().Err(err).Msg("Failed to check existing decision")
		http.Error(w, "Failed to evaluate plan", http.StatusInternalServerError)
		return
	} else if existing != nil {
		h.respondDecision(w, http.StatusOK, *existing)
		return
	}

	ec, err := h.contexts.EvalContext()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to assemble evaluation context")
		http.Error(w, "Failed to assemble evaluation context", http.StatusServiceUnavailable)
		return
	}

	adj := domain.NeutralAdjustments()
	if h.adjustments != nil {
		adj = h.adjustments.AdjustmentsFor(plan.Scope)
	}

	decision, err := h.orchestrator.Evaluate(r.Context(), plan, ec, adj)
	if err != nil {
		h.log.Error().Err(err).Str("plan_id", plan.PlanID).Msg("Evaluation failed")
		http.Error(w, "Failed to evaluate plan", http.StatusInternalServerError)
		return
	}

	stored, created, err := h.decisionRepo.Create(decision)
	if err != nil {
		h.log.Error().Err(err).Str("plan_id", plan.PlanID).Msg("Failed to persist decision")
		http.Error(w, "Failed to persist decision", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respondDecision(w, status, stored)
}

// HandleGetDecisions returns recent decisions
// GET /api/curation/decisions
func (h *Handlers) HandleGetDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	decisions, err := h.decisionRepo.ListRecent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list decisions")
		http.Error(w, "Failed to list decisions", http.StatusInternalServerError)
		return
	}
	if decisions == nil {
		decisions = []domain.Decision{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// HandleGetDecision returns a single decision by ID
// GET /api/curation/decisions/{id}
func (h *Handlers) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	decision, err := h.decisionRepo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("decision_id", id).Msg("Failed to get decision")
		http.Error(w, "Failed to get decision", http.StatusInternalServerError)
		return
	}
	if decision == nil {
		http.Error(w, "Decision not found", http.StatusNotFound)
		return
	}

	h.respondDecision(w, http.StatusOK, *decision)
}

// HandleStats returns decision counts by type
// GET /api/curation/stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.decisionRepo.CountByType()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get decision stats")
		http.Error(w, "Failed to get decision stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
