package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	// Marker is the last table Up creates. Its presence in an unversioned
	// database means the migration was applied.
	Marker string
	Up     func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Marker:      "source_metadata",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    kind TEXT NOT NULL CHECK(kind IN ('story', 'theme')),
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS source_metadata (
    link TEXT PRIMARY KEY,
    title TEXT,
    site_name TEXT,
    image_url TEXT,
    published_at TEXT,
    failed INTEGER DEFAULT 0,
    fetched_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "rank snapshots and run reports",
		Marker:      "run_reports",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS rank_snapshots (
    kind TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    score REAL NOT NULL,
    recency REAL NOT NULL,
    velocity REAL NOT NULL,
    ranked_at TEXT NOT NULL,
    PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    events_added INTEGER DEFAULT 0,
    sources_enriched INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    items_ranked INTEGER DEFAULT 0,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rank_snapshots_kind ON rank_snapshots(kind, position);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "per-kind document revisions",
		Marker:      "document_revisions",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS document_revisions (
    kind TEXT PRIMARY KEY,
    revision INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO document_revisions (kind, revision)
    SELECT kind, COUNT(*) FROM documents GROUP BY kind;

CREATE TRIGGER IF NOT EXISTS documents_revise_insert AFTER INSERT ON documents
BEGIN
    INSERT OR IGNORE INTO document_revisions (kind) VALUES (NEW.kind);
    UPDATE document_revisions SET revision = revision + 1 WHERE kind = NEW.kind;
END;

CREATE TRIGGER IF NOT EXISTS documents_revise_update AFTER UPDATE ON documents
BEGIN
    INSERT OR IGNORE INTO document_revisions (kind) VALUES (NEW.kind);
    UPDATE document_revisions SET revision = revision + 1 WHERE kind IN (OLD.kind, NEW.kind);
END;

CREATE TRIGGER IF NOT EXISTS documents_revise_delete AFTER DELETE ON documents
BEGIN
    UPDATE document_revisions SET revision = revision + 1 WHERE kind = OLD.kind;
END;
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
