package lessons

import "database/sql"

// Schema holds lessons and latent factors. Deprecated rows are never
// reused; the partial unique index allows exactly one live lesson per
// braid while keeping the full deprecation history.
const Schema = `
CREATE TABLE IF NOT EXISTS lessons (
    id INTEGER PRIMARY KEY,
    braid_id INTEGER NOT NULL,
    pattern_key TEXT NOT NULL,
    action_category TEXT NOT NULL,
    trigger_key TEXT NOT NULL,
    trigger_json TEXT NOT NULL,
    lever TEXT NOT NULL,
    multiplier REAL NOT NULL,
    edge_raw REAL NOT NULL,
    incremental_edge REAL NOT NULL,
    avg_rr REAL NOT NULL,
    n INTEGER NOT NULL,
    decay_halflife_hours REAL NOT NULL DEFAULT 0,
    latent_factor_id INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deprecated_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lessons_live_braid
    ON lessons(braid_id) WHERE status != 'deprecated';
CREATE INDEX IF NOT EXISTS idx_lessons_status ON lessons(status);
CREATE INDEX IF NOT EXISTS idx_lessons_trigger ON lessons(trigger_key);

CREATE TABLE IF NOT EXISTS latent_factors (
    id INTEGER PRIMARY KEY,
    representative TEXT NOT NULL,
    members_json TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
