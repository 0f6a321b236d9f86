package lessons

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
)

// Store holds the published set of active lessons. The decision path
// reads it on every evaluation; synthesis replaces the whole set with
// one atomic swap, so readers never observe a partial update.
type Store struct {
	active atomic.Pointer[[]Lesson]
	repo   *Repository
	log    zerolog.Logger
}

// NewStore creates an empty lesson store
func NewStore(repo *Repository, log zerolog.Logger) *Store {
	s := &Store{
		repo: repo,
		log:  log.With().Str("component", "lesson_store").Logger(),
	}
	empty := []Lesson{}
	s.active.Store(&empty)
	return s
}

// Refresh loads the active lesson set from storage and publishes it
func (s *Store) Refresh() error {
	active, err := s.repo.ListByStatus(StatusActive)
	if err != nil {
		return err
	}
	if active == nil {
		active = []Lesson{}
	}
	s.active.Store(&active)
	s.log.Debug().Int("lessons", len(active)).Msg("Active lesson set published")
	return nil
}

// ActiveFor returns the active lessons whose trigger is a subset of
// the given scope.
func (s *Store) ActiveFor(scope domain.Scope) []Lesson {
	all := *s.active.Load()
	var matched []Lesson
	for _, l := range all {
		if l.AppliesTo(scope) {
			matched = append(matched, l)
		}
	}
	return matched
}

// All returns the full published active set
func (s *Store) All() []Lesson {
	return *s.active.Load()
}
