package mining

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
)

// Handlers contains HTTP handlers for inspecting braids
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new mining handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handler", "mining").Logger(),
	}
}

// HandleGetBraids returns braids for a pattern, or all mature braids
// GET /api/braids?pattern_key=...&action=...&min_n=...
func (h *Handlers) HandleGetBraids(w http.ResponseWriter, r *http.Request) {
	patternKey := r.URL.Query().Get("pattern_key")

	var braids []Braid
	var err error

	if patternKey != "" {
		action := domain.ActionCategory(r.URL.Query().Get("action"))
		if !action.IsValid() {
			http.Error(w, "Valid action is required with pattern_key", http.StatusBadRequest)
			return
		}
		braids, err = h.service.braidRepo.ListByPattern(patternKey, action)
	} else {
		minN := int64(1)
		if param := r.URL.Query().Get("min_n"); param != "" {
			if parsed, perr := strconv.ParseInt(param, 10, 64); perr == nil {
				minN = parsed
			}
		}
		braids, err = h.service.MatureBraids(minN)
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list braids")
		http.Error(w, "Failed to list braids", http.StatusInternalServerError)
		return
	}
	if braids == nil {
		braids = []Braid{}
	}

	type braidView struct {
		Braid
		AvgRR    float64 `json:"avg_rr"`
		Variance float64 `json:"variance"`
	}
	views := make([]braidView, len(braids))
	for i, b := range braids {
		views[i] = braidView{Braid: b, AvgRR: b.AvgRR(), Variance: b.Variance()}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"braids": views,
		"count":  len(views),
	})
}
