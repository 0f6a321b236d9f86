package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
)

// HistoryRepository handles per-symbol close history
type HistoryRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// Append records a daily close. Duplicate (symbol, date) pairs are ignored.
func (r *HistoryRepository) Append(symbol string, close float64, date time.Time) error {
	_, err := r.db.ExecWithRetry(`
		INSERT INTO price_history (symbol, close, date) VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO NOTHING
	`, strings.ToUpper(strings.TrimSpace(symbol)), close, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to append price: %w", err)
	}
	return nil
}

// Closes returns the most recent closes for a symbol in chronological
// order, up to limit entries.
func (r *HistoryRepository) Closes(symbol string, limit int) ([]float64, error) {
	rows, err := r.db.Query(`
		SELECT close FROM (
			SELECT close, date FROM price_history
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC
	`, strings.ToUpper(strings.TrimSpace(symbol)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// AllCloses returns close histories for every symbol that has one
func (r *HistoryRepository) AllCloses(limit int) (map[string][]float64, error) {
	rows, err := r.db.Query("SELECT DISTINCT symbol FROM price_history")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(symbols))
	for _, s := range symbols {
		closes, err := r.Closes(s, limit)
		if err != nil {
			return nil, err
		}
		out[s] = closes
	}
	return out, nil
}
