package curation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
	"github.com/helixtrade/curator/internal/modules/allocation"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
	"github.com/helixtrade/curator/internal/modules/risk"
)

type stubCurator struct {
	id    string
	score float64
	veto  bool
	err   error
	delay time.Duration
	calls int
}

func (s *stubCurator) ID() string { return s.id }

func (s *stubCurator) Evaluate(_ domain.TradingPlan, _ EvalContext) (domain.CuratorContribution, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return domain.CuratorContribution{}, s.err
	}
	return domain.CuratorContribution{Score: s.score, HardVeto: s.veto}, nil
}

type stubRisk struct {
	assessment risk.Assessment
	err        error
}

func (s *stubRisk) Evaluate(_ domain.TradingPlan, _ domain.PortfolioSnapshot) (risk.Assessment, error) {
	return s.assessment, s.err
}

type stubAlloc struct {
	assessment allocation.Assessment
	err        error
}

func (s *stubAlloc) Evaluate(_ domain.TradingPlan, _ domain.PortfolioSnapshot) (allocation.Assessment, error) {
	return s.assessment, s.err
}

type stubAsym struct {
	result asymmetry.Result
	err    error
}

func (s *stubAsym) Evaluate(_ asymmetry.MarketMetrics) (asymmetry.Result, error) {
	return s.result, s.err
}

func testConfig() Config {
	return Config{
		MaxPositionSize:    0.10,
		ApproveThreshold:   0.7,
		ModifyThreshold:    0.4,
		RiskAdjustWeight:   0.3,
		AllocAdjustWeight:  0.2,
		ImpactAdjustWeight: 0.1,
		AsymmetryAdjustCap: 0.2,
		CuratorTimeout:     2 * time.Second,
		DecisionValidity:   time.Hour,
		Tradeable:          func(string) bool { return true },
	}
}

// neutralEngines return exactly neutral sub-scores so the decision
// score equals the curators' weighted mean.
func neutralEngines() (*stubRisk, *stubAlloc, *stubAsym) {
	return &stubRisk{assessment: risk.Assessment{Score: 0.5, PortfolioImpact: 0.5}},
		&stubAlloc{assessment: allocation.Assessment{Score: 0.5}},
		&stubAsym{result: asymmetry.Result{CombinedScore: 0}}
}

func newTestOrchestrator(t *testing.T, registry *Registry, r RiskEvaluator, a AllocationEvaluator, as AsymmetryEvaluator, cfg Config) *Orchestrator {
	t.Helper()
	return NewOrchestrator(registry, r, a, as, cfg, events.NewManager(zerolog.Nop()), zerolog.Nop())
}

func validPlan() domain.TradingPlan {
	return domain.TradingPlan{
		PlanID:          "plan-1",
		Symbol:          "BTC-USD",
		Direction:       domain.DirectionLong,
		PositionSize:    0.05,
		EntryConditions: []string{"breakout above resistance"},
		StopLoss:        95.0,
		RiskReward:      2.0,
	}
}

func TestEvaluateRejectsOversizedPlanWithoutScoring(t *testing.T) {
	curator := &stubCurator{id: "alpha", score: 1.0}
	registry := NewRegistry()
	registry.Register(curator, 1.0)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	plan := validPlan()
	plan.PositionSize = 0.15

	decision, err := o.Evaluate(context.Background(), plan, EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionReject, decision.Type)
	assert.NotEmpty(t, decision.RejectionReasons)
	assert.Equal(t, 0, curator.calls, "validation failures must not invoke curators")
	assert.Equal(t, plan.PlanID, decision.PlanID)
	assert.NotEmpty(t, decision.DecisionID)
}

func TestEvaluateWeightedApproval(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 0.9}, 0.4)
	registry.Register(&stubCurator{id: "b", score: 0.8}, 0.3)
	registry.Register(&stubCurator{id: "c", score: 0.7}, 0.3)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionApprove, decision.Type)
	assert.InDelta(t, 0.80, decision.Score, 1e-9)
	assert.InDelta(t, 0.80, decision.Breakdown.Curator, 1e-9)
	assert.True(t, decision.ValidUntil.After(decision.CreatedAt))
}

func TestEvaluateHardVetoOverridesHighScores(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 1.0}, 0.5)
	registry.Register(&stubCurator{id: "b", score: 1.0}, 0.5)

	r := &stubRisk{assessment: risk.Assessment{
		Score:           0.1,
		PortfolioImpact: 0.5,
		HardVeto:        true,
		Reasons:         []string{"VaR 7.10% exceeds limit 5.00%"},
	}}
	a := &stubAlloc{assessment: allocation.Assessment{Score: 0.9}}
	as := &stubAsym{result: asymmetry.Result{CombinedScore: 0}}

	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionReject, decision.Type)
	require.NotEmpty(t, decision.RejectionReasons)
	assert.Contains(t, decision.RejectionReasons[0], "risk veto")
	assert.Contains(t, decision.RejectionReasons[0], "VaR")
}

func TestEvaluateModifyBandSuggestsSmallerSize(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 0.55}, 1.0)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	plan := validPlan()
	decision, err := o.Evaluate(context.Background(), plan, EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionModify, decision.Type)
	require.Len(t, decision.Modifications, 1)
	mod := decision.Modifications[0]
	assert.Equal(t, "position_size", mod.Field)
	assert.Equal(t, plan.PositionSize, mod.Original)
	assert.Less(t, mod.Proposed, plan.PositionSize)
	assert.Greater(t, mod.Proposed, 0.0)
}

func TestEvaluateFailedCuratorIsNeutralZeroWeight(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 0.9}, 0.5)
	registry.Register(&stubCurator{id: "b", err: fmt.Errorf("feed unavailable")}, 0.5)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	// The failed curator drops out of the weighted mean entirely.
	assert.InDelta(t, 0.9, decision.Score, 1e-9)
	assert.Equal(t, domain.DecisionApprove, decision.Type)

	var failed *domain.CuratorContribution
	for i := range decision.Contributions {
		if decision.Contributions[i].CuratorID == "b" {
			failed = &decision.Contributions[i]
		}
	}
	require.NotNil(t, failed)
	assert.True(t, failed.Failed)
	assert.Equal(t, 0.5, failed.Score)
	assert.Equal(t, 0.0, failed.Weight)
}

func TestEvaluateAllFailedFailsClosed(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", err: fmt.Errorf("down")}, 1.0)

	r := &stubRisk{err: fmt.Errorf("down")}
	a := &stubAlloc{err: fmt.Errorf("down")}
	as := &stubAsym{err: fmt.Errorf("down")}

	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionReject, decision.Type)
	require.NotEmpty(t, decision.RejectionReasons)
	assert.Contains(t, decision.RejectionReasons[0], "failing closed")
}

func TestEvaluateCuratorTimeoutTreatedAsFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "slow", score: 0.1, delay: 200 * time.Millisecond}, 0.5)
	registry.Register(&stubCurator{id: "fast", score: 0.9}, 0.5)

	cfg := testConfig()
	cfg.CuratorTimeout = 20 * time.Millisecond

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, cfg)

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	// The slow curator's low score never enters the mean.
	assert.InDelta(t, 0.9, decision.Score, 1e-9)
}

func TestEvaluateAsymmetryAdjustmentIsCapped(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 0.5}, 1.0)

	r := &stubRisk{assessment: risk.Assessment{Score: 0.5, PortfolioImpact: 0.5}}
	a := &stubAlloc{assessment: allocation.Assessment{Score: 0.5}}
	as := &stubAsym{result: asymmetry.Result{CombinedScore: 5.0, ScalingFactor: 2.0}}

	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	// 0.5 weighted + capped 0.2 asymmetry boost.
	assert.InDelta(t, 0.70, decision.Score, 1e-9)
}

func TestEvaluateLeverAdjustmentReweightsCurators(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 1.0}, 0.5)
	registry.Register(&stubCurator{id: "b", score: 0.0}, 0.5)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	adj := domain.NeutralAdjustments()
	adj.CuratorWeights["b"] = 0.0

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, adj)
	require.NoError(t, err)

	// Curator b is muted; only a's perfect score remains.
	assert.InDelta(t, 1.0, decision.Score, 1e-9)
}

func TestEvaluateCuratorVetoExcludedFromMean(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubCurator{id: "a", score: 0.0, veto: true}, 0.5)
	registry.Register(&stubCurator{id: "b", score: 0.9}, 0.5)

	r, a, as := neutralEngines()
	o := newTestOrchestrator(t, registry, r, a, as, testConfig())

	decision, err := o.Evaluate(context.Background(), validPlan(), EvalContext{}, domain.NeutralAdjustments())
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionReject, decision.Type)
	assert.NotEmpty(t, decision.RejectionReasons)
}
