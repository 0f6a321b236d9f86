package domain

import "time"

// Direction represents the trade direction of a plan
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// ActionCategory classifies a realized trade action
type ActionCategory string

const (
	ActionEntry ActionCategory = "entry"
	ActionAdd   ActionCategory = "add"
	ActionTrim  ActionCategory = "trim"
	ActionExit  ActionCategory = "exit"
)

// IsValid checks if the action category is valid
func (a ActionCategory) IsValid() bool {
	switch a {
	case ActionEntry, ActionAdd, ActionTrim, ActionExit:
		return true
	}
	return false
}

// TradingPlan is a candidate plan submitted for evaluation.
// Immutable once submitted; consumed once per evaluation.
type TradingPlan struct {
	PlanID          string    `json:"plan_id"`
	Symbol          string    `json:"symbol"`
	Direction       Direction `json:"direction"`
	PositionSize    float64   `json:"position_size"` // fraction of portfolio
	EntryConditions []string  `json:"entry_conditions"`
	ExitConditions  []string  `json:"exit_conditions,omitempty"`
	StopLoss        float64   `json:"stop_loss,omitempty"`
	TakeProfit      float64   `json:"take_profit,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
	RiskReward      float64   `json:"risk_reward_ratio"`
	TimeHorizon     string    `json:"time_horizon,omitempty"`
	ValidUntil      time.Time `json:"valid_until"`
	Scope           Scope     `json:"scope"`
}

// CuratorContribution is one curator's verdict on a plan.
// Produced fresh per evaluation; never persisted as mutable state.
type CuratorContribution struct {
	CuratorID string  `json:"curator_id"`
	Weight    float64 `json:"weight"` // [0,1]
	Score     float64 `json:"score"`  // [0,1]
	HardVeto  bool    `json:"hard_veto"`
	Reason    string  `json:"reason,omitempty"`
	Failed    bool    `json:"failed,omitempty"` // neutral, zero-weight
}

// DecisionType is the outcome class of an evaluation
type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionModify  DecisionType = "modify"
	DecisionReject  DecisionType = "reject"
)

// Modification is a concrete suggested change attached to a modify decision
type Modification struct {
	Field    string  `json:"field"`
	Original float64 `json:"original"`
	Proposed float64 `json:"proposed"`
	Reason   string  `json:"reason"`
}

// ScoreBreakdown carries the per-engine sub-scores of a decision
type ScoreBreakdown struct {
	Risk       float64 `json:"risk"`
	Allocation float64 `json:"allocation"`
	Asymmetry  float64 `json:"asymmetry"`
	Curator    float64 `json:"curator"`
}

// Decision is the terminal result of evaluating one plan.
// Created once, never mutated; a new plan always yields a new Decision.
type Decision struct {
	DecisionID       string                `json:"decision_id"`
	PlanID           string                `json:"plan_id"`
	Type             DecisionType          `json:"decision_type"`
	Score            float64               `json:"decision_score"` // [0,1]
	Modifications    []Modification        `json:"modifications,omitempty"`
	RejectionReasons []string              `json:"rejection_reasons,omitempty"`
	Breakdown        ScoreBreakdown        `json:"breakdown"`
	Contributions    []CuratorContribution `json:"contributions,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	ValidUntil       time.Time             `json:"valid_until"`
}

// Expired reports whether the decision may no longer be executed
func (d Decision) Expired(now time.Time) bool {
	return now.After(d.ValidUntil)
}

// PatternEvent is an append-only fact: one realized trade action.
type PatternEvent struct {
	PatternKey     string         `json:"pattern_key"`
	ActionCategory ActionCategory `json:"action_category"`
	Scope          Scope          `json:"scope"` // decision-time snapshot
	RealizedRR     float64        `json:"realized_rr"`
	RealizedPnL    float64        `json:"realized_pnl"`
	TradeID        string         `json:"trade_id"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Position is one holding inside a portfolio snapshot
type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	AvgPrice    float64 `json:"avg_price"`
	MarketValue float64 `json:"market_value"`
	Weight      float64 `json:"weight"` // fraction of total value
	Sector      string  `json:"sector,omitempty"`
}

// PortfolioSnapshot is a point-in-time view of the portfolio, taken once
// at the start of an evaluation and held fixed for its duration.
type PortfolioSnapshot struct {
	TakenAt    time.Time            `json:"taken_at"`
	TotalValue float64              `json:"total_value"`
	Cash       float64              `json:"cash"`
	Positions  []Position           `json:"positions"`
	Returns    map[string][]float64 `json:"-"` // symbol -> historical daily returns
}

// LeverAdjustments are the multipliers the feedback bridge derives from
// active lessons and applies before curator orchestration runs.
type LeverAdjustments struct {
	CuratorWeights       map[string]float64 `json:"curator_weights,omitempty"` // curator_id -> multiplier
	SizeMultiplier       float64            `json:"size_multiplier"`
	AllocationMultiplier float64            `json:"allocation_multiplier"`
}

// NeutralAdjustments returns adjustments that change nothing
func NeutralAdjustments() LeverAdjustments {
	return LeverAdjustments{
		CuratorWeights:       make(map[string]float64),
		SizeMultiplier:       1.0,
		AllocationMultiplier: 1.0,
	}
}

// CuratorWeight returns the multiplier for a curator, defaulting to 1.0
func (a LeverAdjustments) CuratorWeight(id string) float64 {
	if m, ok := a.CuratorWeights[id]; ok {
		return m
	}
	return 1.0
}

// PositionWeights returns the weight of every held symbol
func (p PortfolioSnapshot) PositionWeights() map[string]float64 {
	weights := make(map[string]float64, len(p.Positions))
	for _, pos := range p.Positions {
		weights[pos.Symbol] = pos.Weight
	}
	return weights
}
