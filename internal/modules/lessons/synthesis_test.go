package lessons

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/curator/internal/database"
	"github.com/helixtrade/curator/internal/domain"
	"github.com/helixtrade/curator/internal/events"
	"github.com/helixtrade/curator/internal/modules/mining"
)

type fixture struct {
	db      *database.DB
	mining  *mining.Service
	repo    *Repository
	store   *Store
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "lessons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, mining.InitSchema(db.Conn()))
	require.NoError(t, InitSchema(db.Conn()))

	eventMgr := events.NewManager(zerolog.Nop())
	miningSvc := mining.NewService(
		db,
		mining.NewEventRepository(db, zerolog.Nop()),
		mining.NewBraidRepository(db, zerolog.Nop()),
		mining.DefaultEdgeParams(),
		eventMgr,
		zerolog.Nop(),
	)
	repo := NewRepository(db, zerolog.Nop())
	store := NewStore(repo, zerolog.Nop())
	service := NewService(miningSvc, repo, store, DefaultConfig(), eventMgr, zerolog.Nop())

	return &fixture{db: db, mining: miningSvc, repo: repo, store: store, service: service}
}

func (f *fixture) ingest(t *testing.T, prefix string, count int, rr float64) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := f.mining.Ingest(domain.PatternEvent{
			PatternKey:     domain.PatternKey("momentum", "breakout"),
			ActionCategory: domain.ActionEntry,
			Scope: domain.NewScope(map[domain.Dimension]string{
				domain.DimRegime: "bull",
			}),
			RealizedRR: rr,
			TradeID:    fmt.Sprintf("%s-%d", prefix, i),
			Timestamp:  time.Now(),
		})
		require.NoError(t, err)
	}
}

func (f *fixture) liveLesson(t *testing.T, scopeKey string) *Lesson {
	t.Helper()
	braid, err := f.mining.MatureBraids(1)
	require.NoError(t, err)
	for _, b := range braid {
		if b.ScopeKey == scopeKey {
			lesson, err := f.repo.GetLiveByBraid(b.ID)
			require.NoError(t, err)
			return lesson
		}
	}
	return nil
}

func TestSynthesizePromotesSignificantBraid(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "t", 23, 2.3)

	// First pass mints candidates but has too little edge history to
	// promote anything.
	require.NoError(t, f.service.Synthesize())

	global := f.liveLesson(t, "global")
	require.NotNil(t, global)
	assert.Equal(t, StatusCandidate, global.Status)
	assert.EqualValues(t, 23, global.Stats.N)
	assert.InDelta(t, 2.3, global.Stats.AvgRR, 1e-9)
	assert.Empty(t, f.store.All())

	// Two more passes give the fit its three snapshots.
	require.NoError(t, f.service.Synthesize())
	require.NoError(t, f.service.Synthesize())

	global = f.liveLesson(t, "global")
	require.NotNil(t, global)
	assert.Equal(t, StatusActive, global.Status)
	assert.Greater(t, global.Stats.IncrementalEdge, 0.15)
	assert.Equal(t, LeverSize, global.Effect.Lever)
	assert.InDelta(t, 2.0, global.Effect.Multiplier, 1e-9) // strong edge saturates the lever

	// The regime-narrowed braid carries no lift beyond its parent, so
	// it never clears significance.
	narrow := f.liveLesson(t, "regime=bull")
	require.NotNil(t, narrow)
	assert.Equal(t, StatusCandidate, narrow.Status)
	assert.Less(t, narrow.Stats.IncrementalEdge, 0.15)

	// The published set only carries the promoted lesson.
	active := f.store.All()
	require.Len(t, active, 1)
	assert.Equal(t, "global", active[0].TriggerKey)

	// Scope matching: the global trigger applies everywhere.
	scope := domain.NewScope(map[domain.Dimension]string{domain.DimRegime: "bear"})
	assert.Len(t, f.store.ActiveFor(scope), 1)
}

func TestSynthesizeDeprecatesContradictedLesson(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "win", 23, 2.3)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.service.Synthesize())
	}

	promoted := f.liveLesson(t, "global")
	require.NotNil(t, promoted)
	require.Equal(t, StatusActive, promoted.Status)

	// A much larger, opposite-signed wave of evidence arrives.
	f.ingest(t, "loss", 46, -1.0)
	require.NoError(t, f.service.Synthesize())

	// The old lesson is terminally deprecated and a fresh candidate
	// takes its place on the next pass.
	deprecated, err := f.repo.ListByStatus(StatusDeprecated)
	require.NoError(t, err)
	found := false
	for _, l := range deprecated {
		if l.ID == promoted.ID {
			found = true
			assert.NotNil(t, l.DeprecatedAt)
		}
	}
	assert.True(t, found, "promoted lesson should be deprecated")

	require.NoError(t, f.service.Synthesize())
	minted := f.liveLesson(t, "global")
	require.NotNil(t, minted)
	assert.NotEqual(t, promoted.ID, minted.ID)
	assert.Equal(t, StatusCandidate, minted.Status)
}

func TestCheckDecayDeprecatesFadedLesson(t *testing.T) {
	f := newFixture(t)

	// A braid whose recorded edge has been halving daily.
	now := time.Now()
	res, err := f.db.Exec(`
		INSERT INTO braids
		(pattern_key, action_category, scope_key, scope_json, n, sum_rr, sum_rr2, edge_raw, first_seen, last_seen)
		VALUES ('momentum', 'entry', 'global', '{}', 25, 25, 50, 0.025, ?, ?)
	`, now.Add(-96*time.Hour).Format(time.RFC3339), now.Format(time.RFC3339))
	require.NoError(t, err)
	braidID, err := res.LastInsertId()
	require.NoError(t, err)

	for i, snap := range []struct {
		age  time.Duration
		edge float64
	}{
		{96 * time.Hour, 0.4},
		{48 * time.Hour, 0.1},
		{0, 0.025},
	} {
		_, err := f.db.Exec(
			"INSERT INTO braid_snapshots (braid_id, edge_raw, taken_at) VALUES (?, ?, ?)",
			braidID, snap.edge, now.Add(-snap.age).Format(time.RFC3339Nano))
		require.NoError(t, err, "snapshot %d", i)
	}

	lesson, err := f.repo.Insert(Lesson{
		BraidID:    braidID,
		PatternKey: "momentum",
		Action:     domain.ActionEntry,
		TriggerKey: "global",
		Effect:     Effect{Lever: LeverSize, Multiplier: 1.5},
		Stats:      Stats{EdgeRaw: 0.025, IncrementalEdge: 0.2, AvgRR: 1.0, N: 25},
		Status:     StatusActive,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.CheckDecay())

	live, err := f.repo.GetLiveByBraid(braidID)
	require.NoError(t, err)
	assert.Nil(t, live, "decayed lesson should be deprecated")

	deprecated, err := f.repo.ListByStatus(StatusDeprecated)
	require.NoError(t, err)
	require.Len(t, deprecated, 1)
	assert.Equal(t, lesson.ID, deprecated[0].ID)
	assert.Empty(t, f.store.All())
}

func TestCheckDecayFlatHistoryKeepsLesson(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "t", 23, 2.3)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.service.Synthesize())
	}

	promoted := f.liveLesson(t, "global")
	require.NotNil(t, promoted)
	require.Equal(t, StatusActive, promoted.Status)

	// Flat history: no measurable decay, lesson stays active.
	require.NoError(t, f.service.CheckDecay())

	still := f.liveLesson(t, "global")
	require.NotNil(t, still)
	assert.Equal(t, StatusActive, still.Status)
}
