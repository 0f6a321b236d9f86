package curation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
)

// DecisionRepository handles decision persistence
type DecisionRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *database.DB, log zerolog.Logger) *DecisionRepository {
	return &DecisionRepository{
		db:  db,
		log: log.With().Str("repo", "decision").Logger(),
	}
}

// Create persists a decision. The unique plan_id constraint makes the
// insert idempotent: a second evaluation of the same plan is ignored
// and the original decision returned instead.
func (r *DecisionRepository) Create(decision domain.Decision) (domain.Decision, bool, error) {
	payload, err := json.Marshal(decision)
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("failed to marshal decision: %w", err)
	}

	query := `
		INSERT INTO decisions
		(decision_id, plan_id, decision_type, score, payload_json, created_at, valid_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO NOTHING
	`

	result, err := r.db.ExecWithRetry(query,
		decision.DecisionID,
		decision.PlanID,
		string(decision.Type),
		decision.Score,
		string(payload),
		decision.CreatedAt.Format(time.RFC3339),
		decision.ValidUntil.Format(time.RFC3339),
	)
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("failed to create decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		existing, err := r.GetByPlanID(decision.PlanID)
		if err != nil {
			return domain.Decision{}, false, err
		}
		if existing == nil {
			return domain.Decision{}, false, fmt.Errorf("plan %s conflicted but no stored decision found", decision.PlanID)
		}
		r.log.Debug().Str("plan_id", decision.PlanID).Msg("Plan already decided, returning stored decision")
		return *existing, false, nil
	}

	return decision, true, nil
}

// GetByPlanID retrieves the decision for a plan, or nil if none exists
func (r *DecisionRepository) GetByPlanID(planID string) (*domain.Decision, error) {
	row := r.db.QueryRow("SELECT payload_json FROM decisions WHERE plan_id = ?", planID)
	return r.scanDecision(row)
}

// GetByID retrieves a decision by its decision_id
func (r *DecisionRepository) GetByID(decisionID string) (*domain.Decision, error) {
	row := r.db.QueryRow("SELECT payload_json FROM decisions WHERE decision_id = ?", decisionID)
	return r.scanDecision(row)
}

// ListRecent returns the most recent decisions, newest first
func (r *DecisionRepository) ListRecent(limit int) ([]domain.Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		"SELECT payload_json FROM decisions ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		var d domain.Decision
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// CountByType returns decision counts grouped by decision type
func (r *DecisionRepository) CountByType() (map[string]int, error) {
	rows, err := r.db.Query("SELECT decision_type, COUNT(*) FROM decisions GROUP BY decision_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var dtype string
		var n int
		if err := rows.Scan(&dtype, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[dtype] = n
	}
	return counts, rows.Err()
}

func (r *DecisionRepository) scanDecision(row *sql.Row) (*domain.Decision, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	var d domain.Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return &d, nil
}
