package mining

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
)

// keyedMutex serializes work per string key. Braid updates already use
// an atomic SQL upsert; the per-key lock additionally orders the
// read-recompute-write of edge_raw that follows each increment.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m, ok := k.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	k.locks[key] = m
	return m
}

// Service is the pattern-mining aggregator: it folds realized trade
// outcomes into braids at every scope granularity.
type Service struct {
	db        *database.DB
	eventRepo *EventRepository
	braidRepo *BraidRepository
	edge      EdgeParams
	locks     *keyedMutex
	events    *events.Manager
	log       zerolog.Logger
}

// NewService creates a mining service
func NewService(
	db *database.DB,
	eventRepo *EventRepository,
	braidRepo *BraidRepository,
	edge EdgeParams,
	eventMgr *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		eventRepo: eventRepo,
		braidRepo: braidRepo,
		edge:      edge,
		locks:     newKeyedMutex(),
		events:    eventMgr,
		log:       log.With().Str("component", "mining").Logger(),
	}
}

// Ingest folds one realized trade action into every applicable braid:
// one per non-empty scope subset, plus the global braid. Returns false
// without touching any aggregate when the (trade_id, action) pair was
// already ingested.
func (s *Service) Ingest(event domain.PatternEvent) (bool, error) {
	if event.PatternKey == "" {
		return false, fmt.Errorf("event has no pattern key")
	}
	if !event.ActionCategory.IsValid() {
		return false, fmt.Errorf("invalid action category %q", event.ActionCategory)
	}
	if event.TradeID == "" {
		return false, fmt.Errorf("event has no trade id")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// The event row and every braid increment commit together, so a
	// failure mid-fan-out leaves neither a half-counted outcome nor a
	// logged event whose retry would be swallowed as a duplicate.
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := s.eventRepo.Insert(tx, event)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug().
			Str("trade_id", event.TradeID).
			Str("action", string(event.ActionCategory)).
			Msg("Duplicate outcome ignored")
		s.events.Emit(events.OutcomeDuplicate, "mining", map[string]interface{}{
			"trade_id": event.TradeID,
			"action":   string(event.ActionCategory),
		})
		return false, nil
	}

	// Global braid first, then every non-empty subset: a d-dimension
	// scope fans out to 2^d rows.
	subsets := append([]domain.Scope{{}}, event.Scope.Subsets()...)
	for _, subset := range subsets {
		if err := s.applySubset(tx, event, subset); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}

	s.events.Emit(events.OutcomeIngested, "mining", map[string]interface{}{
		"trade_id":    event.TradeID,
		"pattern_key": event.PatternKey,
		"action":      string(event.ActionCategory),
		"subsets":     len(subsets),
	})
	return true, nil
}

func (s *Service) applySubset(tx *sql.Tx, event domain.PatternEvent, subset domain.Scope) error {
	key := event.PatternKey + "|" + string(event.ActionCategory) + "|" + subset.Key()
	lock := s.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	if err := s.braidRepo.Apply(tx, event.PatternKey, event.ActionCategory, subset, event.RealizedRR, event.Timestamp); err != nil {
		return err
	}

	braid, err := s.braidRepo.GetTx(tx, event.PatternKey, event.ActionCategory, subset.Key())
	if err != nil {
		return err
	}
	if braid == nil {
		return fmt.Errorf("braid %s missing after apply", key)
	}

	edge := braid.ComputeEdgeRaw(s.edge, time.Now())
	return s.braidRepo.SetEdge(tx, event.PatternKey, event.ActionCategory, subset.Key(), edge)
}

// IncrementalEdge isolates the marginal lift of a braid's narrowest
// dimension: its own edge minus the best edge among its one-dimension-
// smaller parents. The global braid has no parent, so its incremental
// edge equals its raw edge. Parents that do not exist yet contribute
// zero.
func (s *Service) IncrementalEdge(braid Braid) (float64, error) {
	if braid.Scope.IsEmpty() {
		return braid.EdgeRaw, nil
	}

	best := math.Inf(-1)
	for _, parent := range braid.Scope.Parents() {
		p, err := s.braidRepo.Get(braid.PatternKey, braid.Action, parent.Key())
		if err != nil {
			return 0, err
		}
		val := 0.0 // a parent not yet materialized contributes no edge
		if p != nil {
			val = p.EdgeRaw
		}
		if val > best {
			best = val
		}
	}
	return braid.EdgeRaw - best, nil
}

// MatureBraids returns braids with at least minN samples
func (s *Service) MatureBraids(minN int64) ([]Braid, error) {
	return s.braidRepo.ListMature(minN)
}

// SnapshotEdges records every mature braid's current edge for decay
// fitting. Called once per synthesis run.
func (s *Service) SnapshotEdges(minN int64) error {
	n, err := s.braidRepo.SnapshotEdges(minN, time.Now())
	if err != nil {
		return err
	}
	s.log.Debug().Int64("snapshots", n).Msg("Braid edges snapshotted")
	return nil
}

// EdgeHistory returns a braid's recorded edge series
func (s *Service) EdgeHistory(braidID int64) ([]EdgeSnapshot, error) {
	return s.braidRepo.EdgeHistory(braidID)
}

// OutcomeCorrelationInputs returns the outcome series for each given
// pattern key, for latent-factor clustering.
func (s *Service) OutcomeCorrelationInputs(patternKeys []string) (map[string][]float64, error) {
	out := make(map[string][]float64, len(patternKeys))
	for _, key := range patternKeys {
		outcomes, err := s.eventRepo.OutcomesByPattern(key)
		if err != nil {
			return nil, err
		}
		out[key] = outcomes
	}
	return out, nil
}

// PatternKeys lists pattern keys with at least minEvents outcomes
func (s *Service) PatternKeys(minEvents int64) ([]string, error) {
	return s.eventRepo.PatternKeys(minEvents)
}
