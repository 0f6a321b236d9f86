package mining

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
)

// EventRepository handles the append-only pattern event log
type EventRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB, log zerolog.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log.With().Str("repo", "pattern_event").Logger(),
	}
}

// Insert appends an event inside the caller's transaction, so the log
// entry commits or rolls back together with the braid updates derived
// from it. Returns false if an event with the same
// (trade_id, action_category) already exists; the log is never
// mutated after the fact.
func (r *EventRepository) Insert(tx *sql.Tx, event domain.PatternEvent) (bool, error) {
	scopeJSON, err := json.Marshal(event.Scope)
	if err != nil {
		return false, fmt.Errorf("failed to marshal scope: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO pattern_events
		(pattern_key, action_category, scope_json, realized_rr, realized_pnl, trade_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id, action_category) DO NOTHING
	`,
		event.PatternKey,
		string(event.ActionCategory),
		string(scopeJSON),
		event.RealizedRR,
		event.RealizedPnL,
		event.TradeID,
		event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert pattern event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// CountByPattern returns the number of logged events for a pattern key
func (r *EventRepository) CountByPattern(patternKey string, action domain.ActionCategory) (int64, error) {
	var n int64
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM pattern_events WHERE pattern_key = ? AND action_category = ?",
		patternKey, string(action)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// OutcomesByPattern returns the realized R/R series for a pattern key
// across all actions, in timestamp order. Used for latent-factor
// correlation.
func (r *EventRepository) OutcomesByPattern(patternKey string) ([]float64, error) {
	rows, err := r.db.Query(
		"SELECT realized_rr FROM pattern_events WHERE pattern_key = ? ORDER BY timestamp ASC",
		patternKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []float64
	for rows.Next() {
		var rr float64
		if err := rows.Scan(&rr); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, rr)
	}
	return outcomes, rows.Err()
}

// PatternKeys lists every distinct pattern key with at least minEvents
// logged events.
func (r *EventRepository) PatternKeys(minEvents int64) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT pattern_key FROM pattern_events
		GROUP BY pattern_key
		HAVING COUNT(*) >= ?
		ORDER BY pattern_key
	`, minEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan pattern key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
