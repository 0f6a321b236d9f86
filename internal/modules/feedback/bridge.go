package feedback

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/lessons"
	"github.com/helixtrade/curator/pkg/formulas"
)

// LessonSource yields the active lessons applicable to a scope
type LessonSource interface {
	ActiveFor(scope domain.Scope) []lessons.Lesson
}

// Ingester accepts realized outcome events into the learning engine
type Ingester interface {
	Ingest(event domain.PatternEvent) (bool, error)
}

// Bridge connects the learning engine to the decision path. At
// decision time it folds applicable lessons into lever adjustments; at
// outcome time it forwards realized trade actions to pattern mining.
type Bridge struct {
	source   LessonSource
	ingester Ingester
	leverMin float64
	leverMax float64
	log      zerolog.Logger
}

// NewBridge creates a feedback bridge
func NewBridge(source LessonSource, ingester Ingester, leverMin, leverMax float64, log zerolog.Logger) *Bridge {
	return &Bridge{
		source:   source,
		ingester: ingester,
		leverMin: leverMin,
		leverMax: leverMax,
		log:      log.With().Str("component", "feedback").Logger(),
	}
}

// AdjustmentsFor combines the active lessons matching a scope into
// lever adjustments. Lessons sharing a latent factor describe the same
// underlying signal, so only the strongest one counts (max-combine);
// lessons from distinct factors multiply. Results are clamped to the
// lever bounds.
func (b *Bridge) AdjustmentsFor(scope domain.Scope) domain.LeverAdjustments {
	adj := domain.NeutralAdjustments()
	matched := b.source.ActiveFor(scope)
	if len(matched) == 0 {
		return adj
	}

	// factor id -> lever key -> strongest multiplier. Factor 0 means
	// unclustered; every such lesson is its own factor.
	type leverKey struct {
		factor int64
		lever  lessons.Lever
	}
	strongest := make(map[leverKey]float64)
	soloFactor := int64(-1)

	for _, lesson := range matched {
		factor := lesson.Stats.LatentFactorID
		if factor == 0 {
			factor = soloFactor
			soloFactor--
		}
		key := leverKey{factor: factor, lever: lesson.Effect.Lever}
		current, seen := strongest[key]
		if !seen || deviation(lesson.Effect.Multiplier) > deviation(current) {
			strongest[key] = lesson.Effect.Multiplier
		}
	}

	for key, multiplier := range strongest {
		switch {
		case key.lever == lessons.LeverSize:
			adj.SizeMultiplier *= multiplier
		case key.lever == lessons.LeverAllocation:
			adj.AllocationMultiplier *= multiplier
		case strings.HasPrefix(string(key.lever), "curator:"):
			curatorID := strings.TrimPrefix(string(key.lever), "curator:")
			adj.CuratorWeights[curatorID] = b.clamp(adj.CuratorWeight(curatorID) * multiplier)
		}
	}

	adj.SizeMultiplier = b.clamp(adj.SizeMultiplier)
	adj.AllocationMultiplier = b.clamp(adj.AllocationMultiplier)

	b.log.Debug().
		Int("lessons", len(matched)).
		Float64("size_multiplier", adj.SizeMultiplier).
		Float64("allocation_multiplier", adj.AllocationMultiplier).
		Msg("Lever adjustments derived")
	return adj
}

// RecordOutcome forwards one realized trade action to pattern mining.
// The event carries the decision-time scope snapshot so outcomes
// attribute to the conditions that motivated the action. Returns false
// for duplicates.
func (b *Bridge) RecordOutcome(event domain.PatternEvent) (bool, error) {
	ingested, err := b.ingester.Ingest(event)
	if err != nil {
		return false, fmt.Errorf("failed to record outcome: %w", err)
	}
	return ingested, nil
}

func (b *Bridge) clamp(v float64) float64 {
	return formulas.Clip(v, b.leverMin, b.leverMax)
}

// deviation measures effect strength as distance from neutral
func deviation(multiplier float64) float64 {
	return math.Abs(multiplier - 1.0)
}
