package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
)

// PositionRepository handles position and account state persistence
type PositionRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *database.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all positions
func (r *PositionRepository) GetAll() ([]domain.Position, error) {
	rows, err := r.db.Query(
		"SELECT symbol, quantity, avg_price, market_value, COALESCE(sector, '') FROM positions")
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.AvgPrice, &pos.MarketValue, &pos.Sector); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// Upsert inserts or replaces a position
func (r *PositionRepository) Upsert(pos domain.Position) error {
	now := time.Now().Format(time.RFC3339)
	query := `
		INSERT INTO positions (symbol, quantity, avg_price, market_value, sector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_price = excluded.avg_price,
			market_value = excluded.market_value,
			sector = excluded.sector,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecWithRetry(query,
		strings.ToUpper(strings.TrimSpace(pos.Symbol)),
		pos.Quantity,
		pos.AvgPrice,
		pos.MarketValue,
		pos.Sector,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// Delete removes a position by symbol
func (r *PositionRepository) Delete(symbol string) error {
	_, err := r.db.ExecWithRetry("DELETE FROM positions WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// GetCash returns the current cash balance, zero if never set
func (r *PositionRepository) GetCash() (float64, error) {
	var cash float64
	err := r.db.QueryRow("SELECT cash FROM account_state WHERE id = 1").Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cash: %w", err)
	}
	return cash, nil
}

// SetCash stores the cash balance
func (r *PositionRepository) SetCash(cash float64) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecWithRetry(`
		INSERT INTO account_state (id, cash, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, updated_at = excluded.updated_at
	`, cash, now)
	if err != nil {
		return fmt.Errorf("failed to set cash: %w", err)
	}
	return nil
}
