package feedback

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
)

// Handlers contains HTTP handlers for outcome ingestion
type Handlers struct {
	bridge *Bridge
	log    zerolog.Logger
}

// NewHandlers creates a new feedback handlers instance
func NewHandlers(bridge *Bridge, log zerolog.Logger) *Handlers {
	return &Handlers{
		bridge: bridge,
		log:    log.With().Str("handler", "feedback").Logger(),
	}
}

// HandleRecordOutcome accepts one realized trade action
// POST /api/outcomes
func (h *Handlers) HandleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var event domain.PatternEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid outcome payload", http.StatusBadRequest)
		return
	}

	ingested, err := h.bridge.RecordOutcome(event)
	if err != nil {
		h.log.Error().Err(err).Str("trade_id", event.TradeID).Msg("Failed to record outcome")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusCreated
	if !ingested {
		status = http.StatusOK // duplicate, already ingested
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ingested": ingested,
		"trade_id": event.TradeID,
	})
}
