package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/modules/asymmetry"
	"github.com/helixtrade/curator/internal/modules/curation"
	"github.com/helixtrade/curator/pkg/formulas"
)

// historyWindow is the number of daily closes loaded per symbol when
// assembling a snapshot.
const historyWindow = 252

// MetricsProvider supplies current derivatives-market metrics.
// Optional: without one, asymmetry evaluation degrades to neutral.
type MetricsProvider interface {
	Current() (asymmetry.MarketMetrics, error)
}

// Service assembles point-in-time portfolio snapshots for evaluations
type Service struct {
	positions *PositionRepository
	history   *HistoryRepository
	metrics   MetricsProvider
	log       zerolog.Logger
}

// NewService creates a portfolio service
func NewService(
	positions *PositionRepository,
	history *HistoryRepository,
	metrics MetricsProvider,
	log zerolog.Logger,
) *Service {
	return &Service{
		positions: positions,
		history:   history,
		metrics:   metrics,
		log:       log.With().Str("component", "portfolio").Logger(),
	}
}

// Snapshot builds a point-in-time view of the portfolio. Weights are
// fractions of total value (cash included) and return series are
// derived from stored close history.
func (s *Service) Snapshot() (domain.PortfolioSnapshot, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("failed to load positions: %w", err)
	}

	cash, err := s.positions.GetCash()
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("failed to load cash: %w", err)
	}

	total := cash
	for _, pos := range positions {
		total += pos.MarketValue
	}
	if total > 0 {
		for i := range positions {
			positions[i].Weight = positions[i].MarketValue / total
		}
	}

	closes, err := s.history.AllCloses(historyWindow)
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("failed to load close history: %w", err)
	}

	returns := make(map[string][]float64, len(closes))
	for symbol, series := range closes {
		if r := formulas.CalculateReturns(series); len(r) > 0 {
			returns[symbol] = r
		}
	}

	return domain.PortfolioSnapshot{
		TakenAt:    time.Now(),
		TotalValue: total,
		Cash:       cash,
		Positions:  positions,
		Returns:    returns,
	}, nil
}

// EvalContext assembles the full set of immutable inputs for one
// evaluation: snapshot, close histories, and market metrics.
func (s *Service) EvalContext() (curation.EvalContext, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return curation.EvalContext{}, err
	}

	closes, err := s.history.AllCloses(historyWindow)
	if err != nil {
		return curation.EvalContext{}, fmt.Errorf("failed to load close history: %w", err)
	}

	var metrics asymmetry.MarketMetrics
	if s.metrics != nil {
		metrics, err = s.metrics.Current()
		if err != nil {
			// Asymmetry is an enhancer, not a gate; evaluation proceeds
			// and the asymmetry engine reports failure on its own.
			s.log.Warn().Err(err).Msg("Market metrics unavailable")
		}
	}

	return curation.EvalContext{
		Snapshot: snap,
		Closes:   closes,
		Metrics:  metrics,
	}, nil
}
