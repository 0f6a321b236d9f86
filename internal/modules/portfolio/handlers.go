package portfolio

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
)

// Handlers contains HTTP handlers for the portfolio API
type Handlers struct {
	service   *Service
	positions *PositionRepository
	history   *HistoryRepository
	log       zerolog.Logger
}

// NewHandlers creates a new portfolio handlers instance
func NewHandlers(service *Service, positions *PositionRepository, history *HistoryRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		service:   service,
		positions: positions,
		history:   history,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetSnapshot returns the current portfolio snapshot
// GET /api/portfolio
func (h *Handlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build snapshot")
		http.Error(w, "Failed to build snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// HandleUpsertPosition creates or updates a position
// PUT /api/portfolio/positions
func (h *Handlers) HandleUpsertPosition(w http.ResponseWriter, r *http.Request) {
	var pos domain.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		http.Error(w, "Invalid position payload", http.StatusBadRequest)
		return
	}
	if pos.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	if err := h.positions.Upsert(pos); err != nil {
		h.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to upsert position")
		http.Error(w, "Failed to upsert position", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAppendPrice records a daily close
// POST /api/portfolio/prices
func (h *Handlers) HandleAppendPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string  `json:"symbol"`
		Close  float64 `json:"close"`
		Date   string  `json:"date"` // YYYY-MM-DD, defaults to today
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid price payload", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" || req.Close <= 0 {
		http.Error(w, "symbol and positive close are required", http.StatusBadRequest)
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	if err := h.history.Append(req.Symbol, req.Close, date); err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to append price")
		http.Error(w, "Failed to append price", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
