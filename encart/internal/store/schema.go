// CLAUDE:SUMMARY Complete encart SQL schema: snippets, site_settings, rate_limit_windows, feeds, feed_items, users.
package store

import "database/sql"

// Schema is the complete encart schema. All statements are idempotent.
const Schema = `
-- Admin-authored injected markup ("encarts")
CREATE TABLE IF NOT EXISTS snippets (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    location   TEXT NOT NULL,
    code       TEXT NOT NULL,
    active     INTEGER NOT NULL DEFAULT 1,
    priority   INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snippets_location ON snippets(location, active, priority DESC, created_at ASC);

-- Site-wide configuration (proper key-value entity, not a snippet location)
CREATE TABLE IF NOT EXISTS site_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

-- Fixed rate-limit windows, one active row per (ip, function).
-- window_start is epoch-aligned so concurrent first requests collide
-- on the UNIQUE constraint instead of opening two windows.
CREATE TABLE IF NOT EXISTS rate_limit_windows (
    id            TEXT PRIMARY KEY,
    client_ip     TEXT NOT NULL,
    function_name TEXT NOT NULL,
    request_count INTEGER NOT NULL DEFAULT 0,
    blocked_count INTEGER NOT NULL DEFAULT 0,
    window_start  INTEGER NOT NULL,
    window_end    INTEGER NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    UNIQUE(client_ip, function_name, window_start)
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_end ON rate_limit_windows(window_end);

-- Aggregated feeds (refresh is triggered, not scheduled)
CREATE TABLE IF NOT EXISTS feeds (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    url             TEXT NOT NULL UNIQUE,
    active          INTEGER NOT NULL DEFAULT 1,
    last_fetched_at INTEGER,
    last_status     TEXT NOT NULL DEFAULT 'pending',
    last_error      TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_items (
    id           TEXT PRIMARY KEY,
    feed_id      TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    guid         TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    link         TEXT NOT NULL DEFAULT '',
    summary      TEXT NOT NULL DEFAULT '',
    published    TEXT NOT NULL DEFAULT '',
    fetched_at   INTEGER NOT NULL,
    UNIQUE(feed_id, guid)
);
CREATE INDEX IF NOT EXISTS idx_feed_items_feed ON feed_items(feed_id, fetched_at DESC);

-- Accounts (admins and publishers)
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'publisher',
    status        TEXT NOT NULL DEFAULT 'active',
    created_at    INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';
`

// ApplySchema creates all encart tables if they don't exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
