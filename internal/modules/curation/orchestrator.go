package curation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
	"github.com/helixtrade/curator/internal/modules/allocation"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
	"github.com/helixtrade/curator/internal/modules/risk"
	"github.com/helixtrade/curator/pkg/formulas"
)

// Config holds the orchestration thresholds. The decision bands and
// adjustment weights are tunable defaults, not fixed law.
type Config struct {
	MaxPositionSize    float64
	ApproveThreshold   float64
	ModifyThreshold    float64
	RiskAdjustWeight   float64
	AllocAdjustWeight  float64
	ImpactAdjustWeight float64
	AsymmetryAdjustCap float64
	CuratorTimeout     time.Duration
	DecisionValidity   time.Duration
	Tradeable          func(symbol string) bool
}

// RiskEvaluator assesses tail risk of a candidate against a snapshot
type RiskEvaluator interface {
	Evaluate(plan domain.TradingPlan, snap domain.PortfolioSnapshot) (risk.Assessment, error)
}

// AllocationEvaluator checks portfolio-construction constraints
type AllocationEvaluator interface {
	Evaluate(plan domain.TradingPlan, snap domain.PortfolioSnapshot) (allocation.Assessment, error)
}

// AsymmetryEvaluator detects unusual opportunity in market metrics
type AsymmetryEvaluator interface {
	Evaluate(m asymmetry.MarketMetrics) (asymmetry.Result, error)
}

// Orchestrator combines the registered curators and the three
// sub-engines into a single approve/modify/reject decision.
type Orchestrator struct {
	registry    *Registry
	riskEngine  RiskEvaluator
	allocEngine AllocationEvaluator
	asymEngine  AsymmetryEvaluator
	cfg         Config
	events      *events.Manager
	log         zerolog.Logger
}

// NewOrchestrator creates a curator orchestrator
func NewOrchestrator(
	registry *Registry,
	riskEngine RiskEvaluator,
	allocEngine AllocationEvaluator,
	asymEngine AsymmetryEvaluator,
	cfg Config,
	eventMgr *events.Manager,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		riskEngine:  riskEngine,
		allocEngine: allocEngine,
		asymEngine:  asymEngine,
		cfg:         cfg,
		events:      eventMgr,
		log:         log.With().Str("component", "orchestrator").Logger(),
	}
}

// engineResults collects the sub-engine outputs for one evaluation.
// Failed engines are neutral: score 0.5, no veto, no weight.
type engineResults struct {
	risk       risk.Assessment
	riskFailed bool

	alloc       allocation.Assessment
	allocFailed bool

	asym       asymmetry.Result
	asymFailed bool
}

// Evaluate turns a candidate plan into a Decision. The snapshot inside
// ec was taken at the start of the evaluation and is held fixed, so the
// result is reproducible even if portfolio state changes mid-flight.
func (o *Orchestrator) Evaluate(
	ctx context.Context,
	plan domain.TradingPlan,
	ec EvalContext,
	adj domain.LeverAdjustments,
) (domain.Decision, error) {
	now := time.Now()

	// Step 1: deterministic validation, distinct from curator scoring.
	if result := ValidatePlan(plan, o.cfg.MaxPositionSize, o.cfg.Tradeable); !result.Valid() {
		return o.finish(domain.Decision{
			DecisionID:       uuid.New().String(),
			PlanID:           plan.PlanID,
			Type:             domain.DecisionReject,
			Score:            0,
			RejectionReasons: result.Issues,
			CreatedAt:        now,
			ValidUntil:       now.Add(o.cfg.DecisionValidity),
		}), nil
	}

	// Sizing lever applied before orchestration runs.
	effective := plan
	if adj.SizeMultiplier > 0 {
		effective.PositionSize = math.Min(plan.PositionSize*adj.SizeMultiplier, o.cfg.MaxPositionSize)
	}

	// Step 2: fan out sub-engines and curators. Every branch is a pure
	// function over immutable inputs, so the reduction is order-free.
	engines, contributions := o.fanOut(ctx, effective, ec, adj)

	// Fail closed when nothing produced a usable signal.
	if o.allFailed(engines, contributions) {
		o.events.Emit(events.ErrorOccurred, "curation", map[string]interface{}{
			"plan_id": plan.PlanID,
			"reason":  "all curators failed",
		})
		return o.finish(domain.Decision{
			DecisionID:       uuid.New().String(),
			PlanID:           plan.PlanID,
			Type:             domain.DecisionReject,
			Score:            0,
			RejectionReasons: []string{"all curators failed to evaluate; failing closed"},
			Contributions:    contributions,
			CreatedAt:        now,
			ValidUntil:       now.Add(o.cfg.DecisionValidity),
		}), nil
	}

	// Step 3: aggregation. Vetoes are data, OR-combined before any
	// score-based logic runs.
	allContribs := append(contributions, o.engineContributions(engines)...)

	vetoed, vetoReasons := collectVetoes(allContribs)

	weighted := weightedScore(contributions)
	riskScore := neutralIfFailed(engines.risk.Score, engines.riskFailed)
	allocScore := neutralIfFailed(engines.alloc.Score, engines.allocFailed)
	impactScore := neutralIfFailed(engines.risk.PortfolioImpact, engines.riskFailed)
	asymScore := 0.0
	if !engines.asymFailed {
		asymScore = engines.asym.CombinedScore
	}

	score := weighted +
		o.cfg.RiskAdjustWeight*(riskScore-0.5) +
		o.cfg.AllocAdjustWeight*(allocScore-0.5) +
		math.Min(asymScore*0.1, o.cfg.AsymmetryAdjustCap) +
		o.cfg.ImpactAdjustWeight*(impactScore-0.5)
	score = formulas.Clip(score, 0, 1)

	decision := domain.Decision{
		DecisionID: uuid.New().String(),
		PlanID:     plan.PlanID,
		Score:      score,
		Breakdown: domain.ScoreBreakdown{
			Risk:       riskScore,
			Allocation: allocScore,
			Asymmetry:  asymScore,
			Curator:    weighted,
		},
		Contributions: allContribs,
		CreatedAt:     now,
		ValidUntil:    now.Add(o.cfg.DecisionValidity),
	}

	// Step 4: determination. A veto rejects unconditionally.
	switch {
	case vetoed:
		decision.Type = domain.DecisionReject
		decision.RejectionReasons = vetoReasons
	case score >= o.cfg.ApproveThreshold:
		decision.Type = domain.DecisionApprove
	case score >= o.cfg.ModifyThreshold:
		decision.Type = domain.DecisionModify
		decision.Modifications = o.suggestModifications(plan, effective, score)
	default:
		decision.Type = domain.DecisionReject
		decision.RejectionReasons = lowestScorers(allContribs, 2)
	}

	return o.finish(decision), nil
}

// fanOut runs the three sub-engines and every registered curator in
// parallel, each under its own timeout. A branch that errors or times
// out is recorded as failed (neutral, zero weight) rather than
// aborting the round.
func (o *Orchestrator) fanOut(
	ctx context.Context,
	plan domain.TradingPlan,
	ec EvalContext,
	adj domain.LeverAdjustments,
) (engineResults, []domain.CuratorContribution) {
	var engines engineResults
	entries := o.registry.Entries()
	contributions := make([]domain.CuratorContribution, len(entries))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		assessment, err := runWithTimeout(gctx, o.cfg.CuratorTimeout, func() (risk.Assessment, error) {
			return o.riskEngine.Evaluate(plan, ec.Snapshot)
		})
		if err != nil {
			o.flagFailure("risk", err)
			engines.riskFailed = true
			return nil
		}
		engines.risk = assessment
		return nil
	})

	g.Go(func() error {
		assessment, err := runWithTimeout(gctx, o.cfg.CuratorTimeout, func() (allocation.Assessment, error) {
			a, err := o.allocEngine.Evaluate(plan, ec.Snapshot)
			if err == nil && adj.AllocationMultiplier > 0 && adj.AllocationMultiplier != 1.0 {
				a.Score = formulas.Clip(a.Score*adj.AllocationMultiplier, 0, 1)
			}
			return a, err
		})
		if err != nil {
			o.flagFailure("allocation", err)
			engines.allocFailed = true
			return nil
		}
		engines.alloc = assessment
		return nil
	})

	g.Go(func() error {
		result, err := runWithTimeout(gctx, o.cfg.CuratorTimeout, func() (asymmetry.Result, error) {
			return o.asymEngine.Evaluate(ec.Metrics)
		})
		if err != nil {
			o.flagFailure("asymmetry", err)
			engines.asymFailed = true
			return nil
		}
		engines.asym = result
		return nil
	})

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			contribution, err := runWithTimeout(gctx, o.cfg.CuratorTimeout, func() (domain.CuratorContribution, error) {
				return entry.Curator.Evaluate(plan, ec)
			})
			if err != nil {
				o.flagFailure(entry.Curator.ID(), err)
				contributions[i] = domain.CuratorContribution{
					CuratorID: entry.Curator.ID(),
					Score:     0.5,
					Weight:    0,
					Failed:    true,
					Reason:    err.Error(),
				}
				return nil
			}
			contribution.CuratorID = entry.Curator.ID()
			contribution.Weight = formulas.Clip(entry.Weight*adj.CuratorWeight(entry.Curator.ID()), 0, 1)
			contributions[i] = contribution
			return nil
		})
	}

	// Branches never return errors; Wait only synchronizes the fan-in.
	_ = g.Wait()

	return engines, contributions
}

// runWithTimeout executes fn on its own goroutine and abandons it once
// the timeout or the evaluation context expires. Curator calls are
// short and synchronous; no mid-call cancellation is attempted.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		value, err := fn()
		ch <- outcome{value: value, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-tctx.Done():
		var zero T
		return zero, fmt.Errorf("curator timed out after %s: %w", timeout, tctx.Err())
	}
}

func (o *Orchestrator) flagFailure(curatorID string, err error) {
	o.log.Warn().Err(err).Str("curator", curatorID).Msg("Curator failed, treating as neutral")
	o.events.Emit(events.CuratorFailed, "curation", map[string]interface{}{
		"curator": curatorID,
		"error":   err.Error(),
	})
}

// engineContributions mirrors the sub-engines into contribution records
// (zero weight: their influence enters through the score adjustments,
// not the weighted mean) so veto collection sees a single list.
func (o *Orchestrator) engineContributions(engines engineResults) []domain.CuratorContribution {
	out := make([]domain.CuratorContribution, 0, 3)

	riskReason := ""
	if len(engines.risk.Reasons) > 0 {
		riskReason = "risk veto: " + engines.risk.Reasons[0]
	}
	out = append(out, domain.CuratorContribution{
		CuratorID: "risk",
		Score:     neutralIfFailed(engines.risk.Score, engines.riskFailed),
		HardVeto:  engines.risk.HardVeto,
		Reason:    riskReason,
		Failed:    engines.riskFailed,
	})

	allocReason := ""
	if len(engines.alloc.Reasons) > 0 {
		allocReason = "allocation veto: " + engines.alloc.Reasons[0]
	}
	out = append(out, domain.CuratorContribution{
		CuratorID: "allocation",
		Score:     neutralIfFailed(engines.alloc.Score, engines.allocFailed),
		HardVeto:  engines.alloc.HardVeto,
		Reason:    allocReason,
		Failed:    engines.allocFailed,
	})

	// Asymmetry scales the budget, never vetoes.
	out = append(out, domain.CuratorContribution{
		CuratorID: "asymmetry",
		Score:     formulas.Clip(engines.asym.CombinedScore/2, 0, 1),
		Failed:    engines.asymFailed,
	})

	return out
}

func (o *Orchestrator) allFailed(engines engineResults, contributions []domain.CuratorContribution) bool {
	for _, c := range contributions {
		if !c.Failed {
			return false
		}
	}
	return engines.riskFailed && engines.allocFailed && engines.asymFailed
}

func (o *Orchestrator) suggestModifications(plan, effective domain.TradingPlan, score float64) []domain.Modification {
	// Shrink the position proportionally to how far the score fell
	// short of the approval band.
	gap := (o.cfg.ApproveThreshold - score) / o.cfg.ApproveThreshold
	proposed := effective.PositionSize * formulas.Clip(1.0-gap, 0.25, 0.9)

	return []domain.Modification{
		{
			Field:    "position_size",
			Original: plan.PositionSize,
			Proposed: proposed,
			Reason:   fmt.Sprintf("score %.2f below approval threshold %.2f; reduce exposure", score, o.cfg.ApproveThreshold),
		},
	}
}

func (o *Orchestrator) finish(d domain.Decision) domain.Decision {
	o.events.Emit(events.DecisionCreated, "curation", map[string]interface{}{
		"decision_id": d.DecisionID,
		"plan_id":     d.PlanID,
		"type":        string(d.Type),
		"score":       d.Score,
	})
	o.log.Info().
		Str("plan_id", d.PlanID).
		Str("type", string(d.Type)).
		Float64("score", d.Score).
		Msg("Decision made")
	return d
}

// collectVetoes ORs the hard vetoes across all contributions
func collectVetoes(contributions []domain.CuratorContribution) (bool, []string) {
	var reasons []string
	vetoed := false
	for _, c := range contributions {
		if c.HardVeto {
			vetoed = true
			reason := c.Reason
			if reason == "" {
				reason = fmt.Sprintf("%s vetoed the plan", c.CuratorID)
			}
			reasons = append(reasons, reason)
		}
	}
	return vetoed, reasons
}

// weightedScore computes the weighted mean over non-vetoing, non-failed
// curators. Zero total weight yields the neutral 0.5.
func weightedScore(contributions []domain.CuratorContribution) float64 {
	var sum, weights float64
	for _, c := range contributions {
		if c.HardVeto || c.Failed {
			continue
		}
		sum += c.Score * c.Weight
		weights += c.Weight
	}
	if weights == 0 {
		return 0.5
	}
	return sum / weights
}

// lowestScorers names the n weakest non-failed contributions
func lowestScorers(contributions []domain.CuratorContribution, n int) []string {
	scored := make([]domain.CuratorContribution, 0, len(contributions))
	for _, c := range contributions {
		if !c.Failed {
			scored = append(scored, c)
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score < scored[j].Score
	})

	var reasons []string
	for i := 0; i < n && i < len(scored); i++ {
		reasons = append(reasons, fmt.Sprintf("%s scored %.2f", scored[i].CuratorID, scored[i].Score))
	}
	return reasons
}

func neutralIfFailed(score float64, failed bool) float64 {
	if failed {
		return 0.5
	}
	return score
}
