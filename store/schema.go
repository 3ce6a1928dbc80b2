package store

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id                    TEXT PRIMARY KEY,
    external_id           TEXT UNIQUE,
    title                 TEXT NOT NULL,
    date                  INTEGER NOT NULL,
    state                 TEXT NOT NULL DEFAULT 'NSW',
    location              TEXT NOT NULL DEFAULT 'TBA',
    schedule_details      TEXT NOT NULL DEFAULT '',
    registration_url      TEXT NOT NULL DEFAULT '',
    contact_name          TEXT NOT NULL DEFAULT '',
    contact_email         TEXT NOT NULL DEFAULT '',
    contact_phone         TEXT NOT NULL DEFAULT '',
    registration_deadline INTEGER NOT NULL DEFAULT 0,
    age_categories        TEXT NOT NULL DEFAULT '[]',
    max_teams             INTEGER NOT NULL DEFAULT 16,
    registration_open     INTEGER NOT NULL DEFAULT 1,
    owner_user_id         TEXT,
    manually_entered      INTEGER NOT NULL DEFAULT 0,
    created_by            TEXT NOT NULL DEFAULT '',
    last_sync_at          INTEGER NOT NULL DEFAULT 0,
    created_at            INTEGER NOT NULL,
    active                INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_events_external_id ON events(external_id)
    WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_events_state ON events(state);
CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);

CREATE TABLE IF NOT EXISTS subscribers (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT NOT NULL,
    states     TEXT NOT NULL DEFAULT '[]',
    active     INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers(active);
`

// ApplySchema creates all tables and indexes. Idempotent.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
