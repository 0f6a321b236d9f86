package lessons

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

// Repository handles lesson and latent factor persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new lesson repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "lesson").Logger(),
	}
}

// Insert stores a new lesson and returns it with its assigned ID
func (r *Repository) Insert(lesson Lesson) (Lesson, error) {
	triggerJSON, err := json.Marshal(lesson.Trigger)
	if err != nil {
		return Lesson{}, fmt.Errorf("failed to marshal trigger: %w", err)
	}

	now := time.Now()
	result, err := r.db.ExecWithRetry(`
		INSERT INTO lessons
		(braid_id, pattern_key, action_category, trigger_key, trigger_json,
		 lever, multiplier, edge_raw, incremental_edge, avg_rr, n,
		 decay_halflife_hours, latent_factor_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lesson.BraidID,
		lesson.PatternKey,
		string(lesson.Action),
		lesson.TriggerKey,
		string(triggerJSON),
		string(lesson.Effect.Lever),
		lesson.Effect.Multiplier,
		lesson.Stats.EdgeRaw,
		lesson.Stats.IncrementalEdge,
		lesson.Stats.AvgRR,
		lesson.Stats.N,
		lesson.Stats.DecayHalfLife,
		lesson.Stats.LatentFactorID,
		string(lesson.Status),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return Lesson{}, fmt.Errorf("failed to insert lesson: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Lesson{}, fmt.Errorf("failed to read lesson id: %w", err)
	}
	lesson.ID = id
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	return lesson, nil
}

// UpdateStats refreshes a lesson's statistics and effect
func (r *Repository) UpdateStats(id int64, stats Stats, multiplier float64) error {
	_, err := r.db.ExecWithRetry(`
		UPDATE lessons SET
			edge_raw = ?, incremental_edge = ?, avg_rr = ?, n = ?,
			decay_halflife_hours = ?, latent_factor_id = ?,
			multiplier = ?, updated_at = ?
		WHERE id = ?
	`, stats.EdgeRaw, stats.IncrementalEdge, stats.AvgRR, stats.N,
		stats.DecayHalfLife, stats.LatentFactorID, multiplier,
		time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update lesson stats: %w", err)
	}
	return nil
}

// Promote moves a candidate lesson to active
func (r *Repository) Promote(id int64) error {
	_, err := r.db.ExecWithRetry(`
		UPDATE lessons SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusActive), time.Now().Format(time.RFC3339), id, string(StatusCandidate))
	if err != nil {
		return fmt.Errorf("failed to promote lesson: %w", err)
	}
	return nil
}

// Deprecate terminally retires a lesson
func (r *Repository) Deprecate(id int64) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecWithRetry(`
		UPDATE lessons SET status = ?, updated_at = ?, deprecated_at = ?
		WHERE id = ? AND status != ?
	`, string(StatusDeprecated), now, now, id, string(StatusDeprecated))
	if err != nil {
		return fmt.Errorf("failed to deprecate lesson: %w", err)
	}
	return nil
}

// GetLiveByBraid returns the non-deprecated lesson for a braid, or nil
func (r *Repository) GetLiveByBraid(braidID int64) (*Lesson, error) {
	row := r.db.QueryRow(lessonColumns+`
		WHERE braid_id = ? AND status != ?
	`, braidID, string(StatusDeprecated))

	lesson, err := scanLessonRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByStatus returns all lessons in a given status
func (r *Repository) ListByStatus(status Status) ([]Lesson, error) {
	rows, err := r.db.Query(lessonColumns+" WHERE status = ? ORDER BY id", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()
	return collectLessons(rows)
}

// InsertFactor stores a latent factor and returns its ID
func (r *Repository) InsertFactor(factor LatentFactor) (int64, error) {
	membersJSON, err := json.Marshal(factor.Members)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal members: %w", err)
	}

	result, err := r.db.ExecWithRetry(`
		INSERT INTO latent_factors (representative, members_json, created_at)
		VALUES (?, ?, ?)
	`, factor.Representative, string(membersJSON), time.Now().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to insert latent factor: %w", err)
	}
	return result.LastInsertId()
}

// AssignFactor tags every live lesson of a pattern with its factor
func (r *Repository) AssignFactor(patternKey string, factorID int64) error {
	_, err := r.db.ExecWithRetry(`
		UPDATE lessons SET latent_factor_id = ?
		WHERE pattern_key = ? AND status != ?
	`, factorID, patternKey, string(StatusDeprecated))
	if err != nil {
		return fmt.Errorf("failed to assign latent factor: %w", err)
	}
	return nil
}

// ClearFactors removes all latent factors before a rebuild
func (r *Repository) ClearFactors() error {
	if _, err := r.db.ExecWithRetry("DELETE FROM latent_factors"); err != nil {
		return fmt.Errorf("failed to clear latent factors: %w", err)
	}
	return nil
}

const lessonColumns = `
	SELECT id, braid_id, pattern_key, action_category, trigger_key, trigger_json,
	       lever, multiplier, edge_raw, incremental_edge, avg_rr, n,
	       decay_halflife_hours, latent_factor_id, status,
	       created_at, updated_at, deprecated_at
	FROM lessons
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLessonRow(row rowScanner) (Lesson, error) {
	var l Lesson
	var action, triggerJSON, lever, status, createdAt, updatedAt string
	var deprecatedAt sql.NullString

	err := row.Scan(&l.ID, &l.BraidID, &l.PatternKey, &action, &l.TriggerKey, &triggerJSON,
		&lever, &l.Effect.Multiplier, &l.Stats.EdgeRaw, &l.Stats.IncrementalEdge,
		&l.Stats.AvgRR, &l.Stats.N, &l.Stats.DecayHalfLife, &l.Stats.LatentFactorID,
		&status, &createdAt, &updatedAt, &deprecatedAt)
	if err != nil {
		return Lesson{}, err
	}

	l.Action = domain.ActionCategory(action)
	l.Effect.Lever = Lever(lever)
	l.Status = Status(status)
	if err := json.Unmarshal([]byte(triggerJSON), &l.Trigger); err != nil {
		return Lesson{}, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}
	if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Lesson{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if l.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Lesson{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if deprecatedAt.Valid {
		t, err := time.Parse(time.RFC3339, deprecatedAt.String)
		if err != nil {
			return Lesson{}, fmt.Errorf("failed to parse deprecated_at: %w", err)
		}
		l.DeprecatedAt = &t
	}
	return l, nil
}

func collectLessons(rows *sql.Rows) ([]Lesson, error) {
	var lessons []Lesson
	for rows.Next() {
		l, err := scanLessonRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}
