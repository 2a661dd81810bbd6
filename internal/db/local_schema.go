package db

import (
	"database/sql"
	"fmt"
)

// localSchema is the kiosk database: a mirror of the server ledger, the
// kiosk's own checkout records, and the offline outbox.
const localSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    card_id       TEXT NOT NULL COLLATE NOCASE UNIQUE,
    first_name    TEXT NOT NULL,
    last_name     TEXT NOT NULL,
    active        INTEGER NOT NULL DEFAULT 1,
    registered_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
    id            INTEGER PRIMARY KEY,
    code          TEXT NOT NULL COLLATE NOCASE UNIQUE,
    name          TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT 'Vehicle',
    location      TEXT NOT NULL DEFAULT 'Main',
    active        INTEGER NOT NULL DEFAULT 1,
    registered_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkouts (
    id                  INTEGER PRIMARY KEY,
    asset_id            INTEGER NOT NULL REFERENCES assets(id),
    user_id             INTEGER NOT NULL REFERENCES users(id),
    checked_out_at      TEXT NOT NULL,
    checked_in_at       TEXT,
    kiosk_id            TEXT NOT NULL,
    checked_in_kiosk_id TEXT,
    source              TEXT NOT NULL DEFAULT 'live'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkouts_one_open
    ON checkouts(asset_id) WHERE checked_in_at IS NULL;

CREATE TABLE IF NOT EXISTS reservations (
    id                INTEGER PRIMARY KEY,
    server_id         INTEGER,
    asset_code        TEXT NOT NULL COLLATE NOCASE,
    user_card_id      TEXT COLLATE NOCASE,
    user_name         TEXT,
    reserved_for_name TEXT,
    reserved_at       TEXT NOT NULL,
    lead_hours        INTEGER NOT NULL DEFAULT 24,
    reason            TEXT,
    created_by        TEXT
);

CREATE TABLE IF NOT EXISTS queued_transactions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id        TEXT NOT NULL UNIQUE,
    kind            TEXT NOT NULL CHECK (kind IN ('checkout', 'checkin')),
    user_card_id    TEXT,
    user_first_name TEXT,
    user_last_name  TEXT,
    asset_code      TEXT NOT NULL,
    asset_name      TEXT,
    asset_category  TEXT,
    asset_location  TEXT,
    occurred_at     TEXT NOT NULL,
    kiosk_id        TEXT NOT NULL,
    synced          INTEGER NOT NULL DEFAULT 0,
    synced_at       TEXT,
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT,
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queued_unsynced
    ON queued_transactions(id) WHERE synced = 0;

-- Bumped by every local ledger write; a mirror snapshot fetched before the
-- latest bump is stale.
CREATE TABLE IF NOT EXISTS ledger_version (
    id  INTEGER PRIMARY KEY CHECK (id = 1),
    seq INTEGER NOT NULL
);

INSERT OR IGNORE INTO ledger_version (id, seq) VALUES (1, 0);
`

// EnsureLocalSchema creates the kiosk tables if they do not exist.
func EnsureLocalSchema(db *sql.DB) error {
	if _, err := db.Exec(localSchema); err != nil {
		return fmt.Errorf("creating local schema: %w", err)
	}
	return nil
}
