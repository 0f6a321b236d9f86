package asymmetry

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/database"
)

// referenceWindow is the number of recent observations forming the
// baseline distribution for z-scores.
const referenceWindow = 240

// MetricsSchema stores derivatives-market metric observations
const MetricsSchema = `
CREATE TABLE IF NOT EXISTS market_metrics (
    id INTEGER PRIMARY KEY,
    oi_change REAL NOT NULL,
    funding_rate REAL NOT NULL,
    basis REAL NOT NULL,
    depth_imbalance REAL NOT NULL,
    observed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_market_metrics_observed ON market_metrics(observed_at);
`

// MetricsRepository stores and serves market metric observations
type MetricsRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMetricsRepository creates a metrics repository
func NewMetricsRepository(db *database.DB, log zerolog.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:  db,
		log: log.With().Str("repo", "metrics").Logger(),
	}
}

// InitSchema ensures the market_metrics table exists
func (r *MetricsRepository) InitSchema() error {
	_, err := r.db.Exec(MetricsSchema)
	return err
}

// Record appends one observation
func (r *MetricsRepository) Record(m MarketMetrics, observedAt time.Time) error {
	_, err := r.db.ExecWithRetry(`
		INSERT INTO market_metrics (oi_change, funding_rate, basis, depth_imbalance, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.OpenInterestChange, m.FundingRate, m.Basis, m.DepthImbalance, observedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record metrics: %w", err)
	}
	return nil
}

// Current returns the latest observation with reference histories
// attached. The newest row supplies the current values; the window
// before it forms the baseline.
func (r *MetricsRepository) Current() (MarketMetrics, error) {
	rows, err := r.db.Query(`
		SELECT oi_change, funding_rate, basis, depth_imbalance FROM (
			SELECT * FROM market_metrics ORDER BY observed_at DESC LIMIT ?
		) ORDER BY observed_at ASC
	`, referenceWindow)
	if err != nil {
		return MarketMetrics{}, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var oi, funding, basis, depth []float64
	for rows.Next() {
		var a, b, c, d float64
		if err := rows.Scan(&a, &b, &c, &d); err != nil {
			return MarketMetrics{}, fmt.Errorf("failed to scan metrics: %w", err)
		}
		oi = append(oi, a)
		funding = append(funding, b)
		basis = append(basis, c)
		depth = append(depth, d)
	}
	if err := rows.Err(); err != nil {
		return MarketMetrics{}, err
	}
	if len(oi) == 0 {
		return MarketMetrics{}, fmt.Errorf("no market metrics recorded")
	}

	last := len(oi) - 1
	return MarketMetrics{
		OpenInterestChange: oi[last],
		OpenInterestHist:   oi[:last],
		FundingRate:        funding[last],
		FundingHist:        funding[:last],
		Basis:              basis[last],
		BasisHist:          basis[:last],
		DepthImbalance:     depth[last],
		DepthHist:          depth[:last],
	}, nil
}
