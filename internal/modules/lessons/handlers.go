package lessons

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
)

// Handlers contains HTTP handlers for the lessons API
type Handlers struct {
	store *Store
	repo  *Repository
	log   zerolog.Logger
}

// NewHandlers creates a new lessons handlers instance
func NewHandlers(store *Store, repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		store: store,
		repo:  repo,
		log:   log.With().Str("handler", "lessons").Logger(),
	}
}

// HandleGetLessons returns active lessons, optionally filtered to
// those applicable to a scope given as query parameters
// GET /api/lessons?regime=bull&timeframe=4h
func (h *Handlers) HandleGetLessons(w http.ResponseWriter, r *http.Request) {
	values := make(map[string]string)
	for name, params := range r.URL.Query() {
		if len(params) > 0 && params[0] != "" {
			values[name] = params[0]
		}
	}

	var lessons []Lesson
	if len(values) == 0 {
		lessons = h.store.All()
	} else {
		scope, err := domain.ParseScope(values)
		if err != nil {
			http.Error(w, "Unknown scope dimension", http.StatusBadRequest)
			return
		}
		lessons = h.store.ActiveFor(scope)
	}
	if lessons == nil {
		lessons = []Lesson{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"lessons": lessons,
		"count":   len(lessons),
	})
}

// HandleGetHistory returns every lesson ever minted for auditability,
// grouped by status
// GET /api/lessons/history
func (h *Handlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]Lesson, 3)
	for _, status := range []Status{StatusCandidate, StatusActive, StatusDeprecated} {
		lessons, err := h.repo.ListByStatus(status)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list lessons")
			http.Error(w, "Failed to list lessons", http.StatusInternalServerError)
			return
		}
		if lessons == nil {
			lessons = []Lesson{}
		}
		out[string(status)] = lessons
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
