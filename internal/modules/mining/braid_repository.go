package mining

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

// BraidRepository handles braid aggregate persistence
type BraidRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBraidRepository creates a new braid repository
func NewBraidRepository(db *database.DB, log zerolog.Logger) *BraidRepository {
	return &BraidRepository{
		db:  db,
		log: log.With().Str("repo", "braid").Logger(),
	}
}

// Apply folds one observation into the braid identified by
// (pattern_key, action, scope), creating it on first sight. The
// increment is a single atomic upsert running inside the caller's
// transaction, so a failed fan-out rolls back cleanly.
func (r *BraidRepository) Apply(
	tx *sql.Tx,
	patternKey string,
	action domain.ActionCategory,
	scope domain.Scope,
	rr float64,
	timestamp time.Time,
) error {
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}
	ts := timestamp.Format(time.RFC3339)

	_, err = tx.Exec(`
		INSERT INTO braids
		(pattern_key, action_category, scope_key, scope_json, n, sum_rr, sum_rr2, first_seen, last_seen)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(pattern_key, action_category, scope_key) DO UPDATE SET
			n = n + 1,
			sum_rr = sum_rr + excluded.sum_rr,
			sum_rr2 = sum_rr2 + excluded.sum_rr2,
			last_seen = MAX(last_seen, excluded.last_seen)
	`, patternKey, string(action), scope.Key(), string(scopeJSON), rr, rr*rr, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to apply braid update: %w", err)
	}
	return nil
}

// SetEdge stores the recomputed edge_raw for a braid
func (r *BraidRepository) SetEdge(tx *sql.Tx, patternKey string, action domain.ActionCategory, scopeKey string, edge float64) error {
	_, err := tx.Exec(`
		UPDATE braids SET edge_raw = ?
		WHERE pattern_key = ? AND action_category = ? AND scope_key = ?
	`, edge, patternKey, string(action), scopeKey)
	if err != nil {
		return fmt.Errorf("failed to set edge: %w", err)
	}
	return nil
}

// rowQuerier is satisfied by both *database.DB and *sql.Tx
type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Get returns one braid from committed state, or nil if it does not exist
func (r *BraidRepository) Get(patternKey string, action domain.ActionCategory, scopeKey string) (*Braid, error) {
	return getBraid(r.db, patternKey, action, scopeKey)
}

// GetTx returns one braid as seen inside the transaction, including
// uncommitted increments.
func (r *BraidRepository) GetTx(tx *sql.Tx, patternKey string, action domain.ActionCategory, scopeKey string) (*Braid, error) {
	return getBraid(tx, patternKey, action, scopeKey)
}

func getBraid(q rowQuerier, patternKey string, action domain.ActionCategory, scopeKey string) (*Braid, error) {
	row := q.QueryRow(braidColumns+`
		WHERE pattern_key = ? AND action_category = ? AND scope_key = ?
	`, patternKey, string(action), scopeKey)

	braid, err := scanBraidRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &braid, nil
}

// ListByPattern returns every braid for a (pattern_key, action) pair
func (r *BraidRepository) ListByPattern(patternKey string, action domain.ActionCategory) ([]Braid, error) {
	rows, err := r.db.Query(braidColumns+`
		WHERE pattern_key = ? AND action_category = ?
		ORDER BY scope_key
	`, patternKey, string(action))
	if err != nil {
		return nil, fmt.Errorf("failed to list braids: %w", err)
	}
	defer rows.Close()
	return collectBraids(rows)
}

// ListMature returns all braids with at least minN samples
func (r *BraidRepository) ListMature(minN int64) ([]Braid, error) {
	rows, err := r.db.Query(braidColumns+" WHERE n >= ? ORDER BY n DESC", minN)
	if err != nil {
		return nil, fmt.Errorf("failed to list mature braids: %w", err)
	}
	defer rows.Close()
	return collectBraids(rows)
}

// SnapshotEdges records the current edge_raw of every braid with at
// least minN samples, stamping the series that decay fitting reads.
func (r *BraidRepository) SnapshotEdges(minN int64, takenAt time.Time) (int64, error) {
	result, err := r.db.ExecWithRetry(`
		INSERT INTO braid_snapshots (braid_id, edge_raw, taken_at)
		SELECT id, edge_raw, ? FROM braids WHERE n >= ?
	`, takenAt.Format(time.RFC3339Nano), minN)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot edges: %w", err)
	}
	return result.RowsAffected()
}

// EdgeHistory returns a braid's edge snapshots in chronological order
func (r *BraidRepository) EdgeHistory(braidID int64) ([]EdgeSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT braid_id, edge_raw, taken_at FROM braid_snapshots
		WHERE braid_id = ? ORDER BY taken_at ASC
	`, braidID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edge history: %w", err)
	}
	defer rows.Close()

	var snapshots []EdgeSnapshot
	for rows.Next() {
		var s EdgeSnapshot
		var takenAt string
		if err := rows.Scan(&s.BraidID, &s.EdgeRaw, &takenAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot time: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

const braidColumns = `
	SELECT id, pattern_key, action_category, scope_key, scope_json,
	       n, sum_rr, sum_rr2, edge_raw, first_seen, last_seen
	FROM braids
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBraidRow(row rowScanner) (Braid, error) {
	var b Braid
	var action, scopeJSON, firstSeen, lastSeen string

	err := row.Scan(&b.ID, &b.PatternKey, &action, &b.ScopeKey, &scopeJSON,
		&b.N, &b.SumRR, &b.SumRR2, &b.EdgeRaw, &firstSeen, &lastSeen)
	if err != nil {
		return Braid{}, err
	}

	b.Action = domain.ActionCategory(action)
	if err := json.Unmarshal([]byte(scopeJSON), &b.Scope); err != nil {
		return Braid{}, fmt.Errorf("failed to unmarshal scope: %w", err)
	}
	if b.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return Braid{}, fmt.Errorf("failed to parse first_seen: %w", err)
	}
	if b.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return Braid{}, fmt.Errorf("failed to parse last_seen: %w", err)
	}
	return b, nil
}

func collectBraids(rows *sql.Rows) ([]Braid, error) {
	var braids []Braid
	for rows.Next() {
		b, err := scanBraidRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan braid: %w", err)
		}
		braids = append(braids, b)
	}
	return braids, rows.Err()
}
