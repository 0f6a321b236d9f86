package mining

import "database/sql"

// Schema holds the learning-side tables: the append-only event log,
// the braid aggregates, and the edge snapshot series feeding decay
// fitting. (trade_id, action_category) uniqueness is the dedupe
// boundary for outcome ingestion.
const Schema = `
CREATE TABLE IF NOT EXISTS pattern_events (
    id INTEGER PRIMARY KEY,
    pattern_key TEXT NOT NULL,
    action_category TEXT NOT NULL,
    scope_json TEXT NOT NULL,
    realized_rr REAL NOT NULL,
    realized_pnl REAL NOT NULL,
    trade_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    UNIQUE(trade_id, action_category)
);

CREATE INDEX IF NOT EXISTS idx_pattern_events_key ON pattern_events(pattern_key, action_category);

CREATE TABLE IF NOT EXISTS braids (
    id INTEGER PRIMARY KEY,
    pattern_key TEXT NOT NULL,
    action_category TEXT NOT NULL,
    scope_key TEXT NOT NULL,
    scope_json TEXT NOT NULL,
    n INTEGER NOT NULL,
    sum_rr REAL NOT NULL,
    sum_rr2 REAL NOT NULL,
    edge_raw REAL NOT NULL DEFAULT 0,
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    UNIQUE(pattern_key, action_category, scope_key)
);

CREATE INDEX IF NOT EXISTS idx_braids_pattern ON braids(pattern_key, action_category);
CREATE INDEX IF NOT EXISTS idx_braids_n ON braids(n);

CREATE TABLE IF NOT EXISTS braid_snapshots (
    id INTEGER PRIMARY KEY,
    braid_id INTEGER NOT NULL,
    edge_raw REAL NOT NULL,
    taken_at TEXT NOT NULL,
    FOREIGN KEY (braid_id) REFERENCES braids(id)
);

CREATE INDEX IF NOT EXISTS idx_braid_snapshots_braid ON braid_snapshots(braid_id, taken_at);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
