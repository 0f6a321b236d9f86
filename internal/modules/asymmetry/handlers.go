package asymmetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Handlers contains HTTP handlers for market metric ingestion
type Handlers struct {
	metrics *MetricsRepository
	log     zerolog.Logger
}

// NewHandlers creates a new asymmetry handlers instance
func NewHandlers(metrics *MetricsRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		metrics: metrics,
		log:     log.With().Str("handler", "asymmetry").Logger(),
	}
}

// HandleRecordMetrics appends one derivatives-market observation
// POST /api/metrics
func (h *Handlers) HandleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OpenInterestChange float64    `json:"open_interest_change"`
		FundingRate        float64    `json:"funding_rate"`
		Basis              float64    `json:"basis"`
		DepthImbalance     float64    `json:"depth_imbalance"`
		ObservedAt         *time.Time `json:"observed_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid metrics payload", http.StatusBadRequest)
		return
	}

	observedAt := time.Now()
	if payload.ObservedAt != nil {
		observedAt = *payload.ObservedAt
	}

	m := MarketMetrics{
		OpenInterestChange: payload.OpenInterestChange,
		FundingRate:        payload.FundingRate,
		Basis:              payload.Basis,
		DepthImbalance:     payload.DepthImbalance,
	}
	if err := h.metrics.Record(m, observedAt); err != nil {
		h.log.Error().Err(err).Msg("Failed to record metrics")
		http.Error(w, "Failed to record metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
}
