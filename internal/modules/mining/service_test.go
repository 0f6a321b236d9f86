package mining

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "mining.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db.Conn()))

	return NewService(
		db,
		NewEventRepository(db, zerolog.Nop()),
		NewBraidRepository(db, zerolog.Nop()),
		DefaultEdgeParams(),
		events.NewManager(zerolog.Nop()),
		zerolog.Nop(),
	), db
}

func testEvent(tradeID string, rr float64) domain.PatternEvent {
	return domain.PatternEvent{
		PatternKey:     domain.PatternKey("momentum", "breakout"),
		ActionCategory: domain.ActionEntry,
		Scope: domain.NewScope(map[domain.Dimension]string{
			domain.DimRegime:    "bull",
			domain.DimTimeframe: "4h",
		}),
		RealizedRR:  rr,
		RealizedPnL: rr * 100,
		TradeID:     tradeID,
		Timestamp:   time.Now(),
	}
}

func TestIngestFansOutToEverySubset(t *testing.T) {
	s, _ := newTestService(t)

	ingested, err := s.Ingest(testEvent("t-1", 1.5))
	require.NoError(t, err)
	assert.True(t, ingested)

	// Two dimensions: global + 3 non-empty subsets.
	braids, err := s.braidRepo.ListByPattern(domain.PatternKey("momentum", "breakout"), domain.ActionEntry)
	require.NoError(t, err)
	require.Len(t, braids, 4)

	keys := make(map[string]bool)
	for _, b := range braids {
		keys[b.ScopeKey] = true
		assert.EqualValues(t, 1, b.N)
		assert.InDelta(t, 1.5, b.SumRR, 1e-12)
		assert.InDelta(t, 2.25, b.SumRR2, 1e-12)
		assert.Greater(t, b.EdgeRaw, 0.0)
	}
	assert.True(t, keys["global"])
	assert.True(t, keys["regime=bull"])
	assert.True(t, keys["timeframe=4h"])
	assert.True(t, keys["regime=bull|timeframe=4h"])
}

func TestIngestDuplicateIsIdempotent(t *testing.T) {
	s, _ := newTestService(t)

	ingested, err := s.Ingest(testEvent("t-1", 2.0))
	require.NoError(t, err)
	assert.True(t, ingested)

	// Same trade, same action: ignored even with a different R/R.
	again, err := s.Ingest(testEvent("t-1", 9.0))
	require.NoError(t, err)
	assert.False(t, again)

	braid, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "global")
	require.NoError(t, err)
	require.NotNil(t, braid)
	assert.EqualValues(t, 1, braid.N)
	assert.InDelta(t, 2.0, braid.SumRR, 1e-12)

	// The same trade closing is a distinct fact.
	exit := testEvent("t-1", 2.0)
	exit.ActionCategory = domain.ActionExit
	ingested, err = s.Ingest(exit)
	require.NoError(t, err)
	assert.True(t, ingested)
}

func TestIngestAccumulatesRunningMoments(t *testing.T) {
	s, _ := newTestService(t)

	for i, rr := range []float64{1.0, 2.0, 3.0} {
		_, err := s.Ingest(testEvent(string(rune('a'+i)), rr))
		require.NoError(t, err)
	}

	braid, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "global")
	require.NoError(t, err)
	require.NotNil(t, braid)

	assert.EqualValues(t, 3, braid.N)
	assert.InDelta(t, 6.0, braid.SumRR, 1e-12)
	assert.InDelta(t, 14.0, braid.SumRR2, 1e-12)
	assert.InDelta(t, 2.0, braid.AvgRR(), 1e-12)
	assert.InDelta(t, 2.0/3.0, braid.Variance(), 1e-12)
}

func TestIncrementalEdgeSubtractsBestParent(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Ingest(testEvent("t-1", 2.0))
	require.NoError(t, err)

	global, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "global")
	require.NoError(t, err)
	require.NotNil(t, global)

	// The global braid has no parent: incremental equals raw.
	inc, err := s.IncrementalEdge(*global)
	require.NoError(t, err)
	assert.InDelta(t, global.EdgeRaw, inc, 1e-12)

	narrow, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "regime=bull|timeframe=4h")
	require.NoError(t, err)
	require.NotNil(t, narrow)

	// Parents hold identical statistics here, so the narrow scope adds
	// no marginal lift.
	bull, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "regime=bull")
	require.NoError(t, err)
	require.NotNil(t, bull)

	inc, err = s.IncrementalEdge(*narrow)
	require.NoError(t, err)
	assert.InDelta(t, narrow.EdgeRaw-bull.EdgeRaw, inc, 1e-12)
}

func TestIngestFailureRollsBackEventLog(t *testing.T) {
	s, db := newTestService(t)

	// Make the braid fan-out fail after the event row is written.
	_, err := db.Exec("DROP TABLE braids")
	require.NoError(t, err)

	ingested, err := s.Ingest(testEvent("t-1", 1.5))
	require.Error(t, err)
	assert.False(t, ingested)

	// Nothing committed: the retry after storage recovers must count.
	count, err := s.eventRepo.CountByPattern(domain.PatternKey("momentum", "breakout"), domain.ActionEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	require.NoError(t, InitSchema(db.Conn()))

	ingested, err = s.Ingest(testEvent("t-1", 1.5))
	require.NoError(t, err)
	assert.True(t, ingested)

	braid, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "global")
	require.NoError(t, err)
	require.NotNil(t, braid)
	assert.EqualValues(t, 1, braid.N)
}

func TestIncrementalEdgeWithNegativeParents(t *testing.T) {
	s, db := newTestService(t)

	_, err := s.Ingest(testEvent("t-1", 2.0))
	require.NoError(t, err)

	// Force both parents of the narrow braid below zero; the best
	// parent must still be subtracted, not floored at zero.
	for _, scopeKey := range []string{"regime=bull", "timeframe=4h"} {
		_, err := db.Exec(
			"UPDATE braids SET edge_raw = ? WHERE scope_key = ?",
			-0.2, scopeKey)
		require.NoError(t, err)
	}

	narrow, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "regime=bull|timeframe=4h")
	require.NoError(t, err)
	require.NotNil(t, narrow)

	inc, err := s.IncrementalEdge(*narrow)
	require.NoError(t, err)
	assert.InDelta(t, narrow.EdgeRaw+0.2, inc, 1e-12)
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	s, _ := newTestService(t)

	event := testEvent("t-1", 1.0)
	event.PatternKey = ""
	_, err := s.Ingest(event)
	assert.Error(t, err)

	event = testEvent("t-1", 1.0)
	event.ActionCategory = "hold"
	_, err = s.Ingest(event)
	assert.Error(t, err)

	event = testEvent("", 1.0)
	_, err = s.Ingest(event)
	assert.Error(t, err)
}

func TestSnapshotEdgesRecordsHistory(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Ingest(testEvent("t-1", 2.0))
	require.NoError(t, err)

	require.NoError(t, s.SnapshotEdges(1))
	require.NoError(t, s.SnapshotEdges(1))

	braid, err := s.braidRepo.Get(domain.PatternKey("momentum", "breakout"), domain.ActionEntry, "global")
	require.NoError(t, err)
	require.NotNil(t, braid)

	history, err := s.EdgeHistory(braid.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	for _, snap := range history {
		assert.InDelta(t, braid.EdgeRaw, snap.EdgeRaw, 1e-12)
	}
}
