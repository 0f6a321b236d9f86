package lessons

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/events"
	"github.com/helixtrade/curator/internal/modules/mining"
	"github.com/helixtrade/curator/pkg/formulas"
)

// Config holds the lesson lifecycle thresholds
type Config struct {
	MinSampleSize         int64
	SignificanceThreshold float64
	ActivityFloor         float64
	LeverMin              float64
	LeverMax              float64
	CorrelationThreshold  float64
	MinCorrelationOverlap int
}

// DefaultConfig returns the standard lifecycle configuration
func DefaultConfig() Config {
	return Config{
		MinSampleSize:         20,
		SignificanceThreshold: 0.15,
		ActivityFloor:         0.05,
		LeverMin:              0.5,
		LeverMax:              2.0,
		CorrelationThreshold:  0.95,
		MinCorrelationOverlap: 10,
	}
}

// Service runs the lesson lifecycle: minting candidates from mature
// braids, promoting significant ones, measuring decay, and clustering
// correlated patterns into latent factors.
type Service struct {
	mining *mining.Service
	repo   *Repository
	store  *Store
	cfg    Config
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a lesson synthesis service
func NewService(
	miningSvc *mining.Service,
	repo *Repository,
	store *Store,
	cfg Config,
	eventMgr *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		mining: miningSvc,
		repo:   repo,
		store:  store,
		cfg:    cfg,
		events: eventMgr,
		log:    log.With().Str("component", "lessons").Logger(),
	}
}

// Synthesize is the scheduled lifecycle pass: snapshot braid edges,
// mint candidates for newly mature braids, promote candidates whose
// incremental edge clears significance, deprecate contradicted active
// lessons, rebuild latent factors, and publish the new active set.
func (s *Service) Synthesize() error {
	if err := s.mining.SnapshotEdges(s.cfg.MinSampleSize); err != nil {
		return fmt.Errorf("failed to snapshot edges: %w", err)
	}

	braids, err := s.mining.MatureBraids(s.cfg.MinSampleSize)
	if err != nil {
		return fmt.Errorf("failed to list mature braids: %w", err)
	}

	for _, braid := range braids {
		if err := s.processBraid(braid); err != nil {
			s.log.Error().Err(err).Str("scope_key", braid.ScopeKey).Msg("Braid processing failed")
			s.events.EmitError("lessons", err, map[string]interface{}{
				"pattern_key": braid.PatternKey,
				"scope_key":   braid.ScopeKey,
			})
		}
	}

	if err := s.RebuildFactors(); err != nil {
		return err
	}

	if err := s.store.Refresh(); err != nil {
		return fmt.Errorf("failed to publish lesson set: %w", err)
	}
	s.events.Emit(events.LessonSetSwapped, "lessons", map[string]interface{}{
		"active": len(s.store.All()),
	})
	return nil
}

func (s *Service) processBraid(braid mining.Braid) error {
	inc, err := s.mining.IncrementalEdge(braid)
	if err != nil {
		return err
	}

	stats := Stats{
		EdgeRaw:         braid.EdgeRaw,
		IncrementalEdge: inc,
		AvgRR:           braid.AvgRR(),
		N:               braid.N,
	}

	lesson, err := s.repo.GetLiveByBraid(braid.ID)
	if err != nil {
		return err
	}

	if lesson == nil {
		return s.mint(braid, stats)
	}

	switch lesson.Status {
	case StatusActive:
		return s.checkContradiction(*lesson, braid)
	case StatusCandidate:
		return s.tryPromote(*lesson, braid, stats)
	}
	return nil
}

func (s *Service) mint(braid mining.Braid, stats Stats) error {
	lesson := Lesson{
		BraidID:    braid.ID,
		PatternKey: braid.PatternKey,
		Action:     braid.Action,
		Trigger:    braid.Scope,
		TriggerKey: braid.ScopeKey,
		Effect: Effect{
			Lever:      LeverForAction(braid.Action),
			Multiplier: s.effectMultiplier(stats),
		},
		Stats:  stats,
		Status: StatusCandidate,
	}

	created, err := s.repo.Insert(lesson)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("pattern_key", created.PatternKey).
		Str("trigger", created.TriggerKey).
		Int64("n", created.Stats.N).
		Msg("Candidate lesson minted")
	s.events.Emit(events.LessonMinted, "lessons", map[string]interface{}{
		"lesson_id":   created.ID,
		"pattern_key": created.PatternKey,
		"trigger":     created.TriggerKey,
	})
	return nil
}

// tryPromote moves a candidate to active once its incremental edge
// clears significance and its edge history supports a decay fit. A
// sparse history keeps the candidate waiting rather than promoting on
// thin evidence.
func (s *Service) tryPromote(lesson Lesson, braid mining.Braid, stats Stats) error {
	multiplier := s.effectMultiplier(stats)

	if stats.N < s.cfg.MinSampleSize || stats.IncrementalEdge < s.cfg.SignificanceThreshold {
		return s.repo.UpdateStats(lesson.ID, stats, multiplier)
	}

	halfLife, err := s.fitHalfLife(braid.ID)
	if errors.Is(err, formulas.ErrInsufficientDecayData) {
		return s.repo.UpdateStats(lesson.ID, stats, multiplier)
	}
	if err != nil {
		return err
	}
	stats.DecayHalfLife = halfLife

	if err := s.repo.UpdateStats(lesson.ID, stats, multiplier); err != nil {
		return err
	}
	if err := s.repo.Promote(lesson.ID); err != nil {
		return err
	}

	s.log.Info().
		Str("pattern_key", lesson.PatternKey).
		Str("trigger", lesson.TriggerKey).
		Float64("incremental_edge", stats.IncrementalEdge).
		Float64("multiplier", multiplier).
		Msg("Lesson promoted to active")
	s.events.Emit(events.LessonPromoted, "lessons", map[string]interface{}{
		"lesson_id":        lesson.ID,
		"pattern_key":      lesson.PatternKey,
		"trigger":          lesson.TriggerKey,
		"incremental_edge": stats.IncrementalEdge,
	})
	return nil
}

// checkContradiction deprecates an active lesson when the evidence
// gathered since promotion is materially larger than the original
// sample and points the opposite way. The lesson's stored stats stay
// frozen at promotion so the comparison has a fixed baseline.
func (s *Service) checkContradiction(lesson Lesson, braid mining.Braid) error {
	newN := braid.N - lesson.Stats.N
	if newN < 2*lesson.Stats.N || lesson.Stats.N == 0 {
		return nil
	}

	newSum := braid.SumRR - lesson.Stats.AvgRR*float64(lesson.Stats.N)
	newAvg := newSum / float64(newN)
	if lesson.Stats.AvgRR*newAvg >= 0 {
		return nil
	}

	s.log.Warn().
		Str("pattern_key", lesson.PatternKey).
		Str("trigger", lesson.TriggerKey).
		Float64("promoted_avg_rr", lesson.Stats.AvgRR).
		Float64("new_avg_rr", newAvg).
		Msg("Lesson contradicted by newer evidence, deprecating")
	return s.deprecate(lesson, "contradicted")
}

// CheckDecay is the scheduled decay pass over active lessons: refit
// each lesson's edge history and deprecate those whose decayed
// strength fell below the activity floor. Fit failures leave the
// lesson untouched.
func (s *Service) CheckDecay() error {
	active, err := s.repo.ListByStatus(StatusActive)
	if err != nil {
		return err
	}

	for _, lesson := range active {
		if err := s.checkLessonDecay(lesson); err != nil {
			s.log.Error().Err(err).Int64("lesson_id", lesson.ID).Msg("Decay check failed")
			s.events.EmitError("lessons", err, map[string]interface{}{"lesson_id": lesson.ID})
		}
	}

	return s.store.Refresh()
}

func (s *Service) checkLessonDecay(lesson Lesson) error {
	history, err := s.mining.EdgeHistory(lesson.BraidID)
	if err != nil {
		return err
	}

	samples := toDecaySamples(history)
	halfLife, err := formulas.FitExponentialDecay(samples)
	if errors.Is(err, formulas.ErrInsufficientDecayData) {
		return nil
	}
	if err != nil {
		return err
	}

	stats := lesson.Stats
	stats.DecayHalfLife = halfLife.Hours()
	if err := s.repo.UpdateStats(lesson.ID, stats, lesson.Effect.Multiplier); err != nil {
		return err
	}

	if halfLife <= 0 {
		return nil // flat or growing: no decay measured
	}

	first := samples[0]
	decayed := formulas.DecayedStrength(first.Value, time.Since(first.At), halfLife)
	if decayed >= s.cfg.ActivityFloor {
		return nil
	}

	s.log.Info().
		Str("pattern_key", lesson.PatternKey).
		Str("trigger", lesson.TriggerKey).
		Float64("decayed_strength", decayed).
		Dur("half_life", halfLife).
		Msg("Lesson strength below activity floor, deprecating")
	return s.deprecate(lesson, "decayed")
}

func (s *Service) deprecate(lesson Lesson, reason string) error {
	if err := s.repo.Deprecate(lesson.ID); err != nil {
		return err
	}
	s.events.Emit(events.LessonDeprecated, "lessons", map[string]interface{}{
		"lesson_id":   lesson.ID,
		"pattern_key": lesson.PatternKey,
		"trigger":     lesson.TriggerKey,
		"reason":      reason,
	})
	return nil
}

// RebuildFactors reclusters pattern outcomes into latent factors and
// retags live lessons with their factor IDs.
func (s *Service) RebuildFactors() error {
	keys, err := s.mining.PatternKeys(int64(s.cfg.MinCorrelationOverlap))
	if err != nil {
		return err
	}
	if len(keys) < 2 {
		return nil
	}

	outcomes, err := s.mining.OutcomeCorrelationInputs(keys)
	if err != nil {
		return err
	}

	factors := ClusterPatterns(outcomes, s.cfg.CorrelationThreshold, s.cfg.MinCorrelationOverlap)
	if err := s.repo.ClearFactors(); err != nil {
		return err
	}

	for _, factor := range factors {
		id, err := s.repo.InsertFactor(factor)
		if err != nil {
			return err
		}
		for _, member := range factor.Members {
			if err := s.repo.AssignFactor(member, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// fitHalfLife fits a braid's edge snapshot history, returning the
// half-life in hours (0 when no decay is measurable).
func (s *Service) fitHalfLife(braidID int64) (float64, error) {
	history, err := s.mining.EdgeHistory(braidID)
	if err != nil {
		return 0, err
	}
	halfLife, err := formulas.FitExponentialDecay(toDecaySamples(history))
	if err != nil {
		return 0, err
	}
	return halfLife.Hours(), nil
}

// effectMultiplier maps incremental edge onto a bounded lever
// multiplier. Direction follows the realized R/R sign: winning
// patterns push the lever above 1, losing ones below. Monotone in the
// edge for a fixed sign.
func (s *Service) effectMultiplier(stats Stats) float64 {
	direction := 1.0
	if stats.AvgRR < 0 {
		direction = -1.0
	}
	raw := 1.0 + direction*2.0*math.Max(stats.IncrementalEdge, 0)
	return formulas.Clip(raw, s.cfg.LeverMin, s.cfg.LeverMax)
}

func toDecaySamples(history []mining.EdgeSnapshot) []formulas.DecaySample {
	samples := make([]formulas.DecaySample, len(history))
	for i, snap := range history {
		samples[i] = formulas.DecaySample{At: snap.TakenAt, Value: snap.EdgeRaw}
	}
	return samples
}
