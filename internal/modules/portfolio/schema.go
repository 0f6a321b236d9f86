package portfolio

import "database/sql"

// Schema holds portfolio state: current positions, account cash, and
// the per-symbol close history used to derive return series.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY,
    symbol TEXT UNIQUE NOT NULL,
    quantity REAL NOT NULL,
    avg_price REAL NOT NULL,
    market_value REAL NOT NULL,
    sector TEXT,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS account_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    cash REAL NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
    id INTEGER PRIMARY KEY,
    symbol TEXT NOT NULL,
    close REAL NOT NULL,
    date TEXT NOT NULL,
    UNIQUE(symbol, date)
);

CREATE INDEX IF NOT EXISTS idx_price_history_symbol ON price_history(symbol, date);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
