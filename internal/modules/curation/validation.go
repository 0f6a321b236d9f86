package curation

import (
	"fmt"
	"strings"

	"github.com/helixtrade/curator/internal/domain"
)

// ValidationResult lists the deterministic problems found in a plan.
// A non-empty issue list short-circuits to reject before any curator runs.
type ValidationResult struct {
	Issues []string `json:"issues,omitempty"`
}

// Valid reports whether the plan passed validation
func (v ValidationResult) Valid() bool {
	return len(v.Issues) == 0
}

// ValidatePlan checks the structural requirements of a candidate plan:
// required fields, the position-size cap, and symbol tradeability.
func ValidatePlan(plan domain.TradingPlan, maxPositionSize float64, tradeable func(string) bool) ValidationResult {
	var issues []string

	if strings.TrimSpace(plan.Symbol) == "" {
		issues = append(issues, "symbol is required")
	}
	if !plan.Direction.IsValid() {
		issues = append(issues, fmt.Sprintf("direction must be long or short, got %q", plan.Direction))
	}
	if plan.PositionSize <= 0 {
		issues = append(issues, "position_size must be positive")
	} else if plan.PositionSize > maxPositionSize {
		issues = append(issues, fmt.Sprintf("position_size %.4f exceeds maximum %.4f",
			plan.PositionSize, maxPositionSize))
	}
	if len(plan.EntryConditions) == 0 {
		issues = append(issues, "at least one entry condition is required")
	}
	if plan.Symbol != "" && tradeable != nil && !tradeable(plan.Symbol) {
		issues = append(issues, fmt.Sprintf("symbol %s is not tradeable", plan.Symbol))
	}

	return ValidationResult{Issues: issues}
}
