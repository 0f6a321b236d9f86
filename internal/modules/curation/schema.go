package curation

import "database/sql"

// DecisionsSchema holds the decision store tables. plan_id is unique:
// a plan is evaluated once, and replays return the stored decision.
const DecisionsSchema = `
CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY,
    decision_id TEXT UNIQUE NOT NULL,
    plan_id TEXT UNIQUE NOT NULL,
    decision_type TEXT NOT NULL,
    score REAL NOT NULL,
    payload_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    valid_until TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_type ON decisions(decision_type);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(DecisionsSchema)
	return err
}
