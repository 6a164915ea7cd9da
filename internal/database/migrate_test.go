package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateLegacyDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// Simulate a pre-migration database: create tables without setting user_version.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE documents (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		PRIMARY KEY (kind, id)
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE source_metadata (link TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	raw.Close()

	// Now open via the migration system.
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after legacy migration, got %d", latestVersion(), version)
	}

	// Later migrations must still have run on top of the stamped version.
	if _, err := db.GetRankSnapshots("story"); err != nil {
		t.Errorf("expected rank_snapshots table after legacy migration: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
	if v, err := db2.SchemaVersion(); err != nil || v != version {
		t.Errorf("expected SchemaVersion %d, got %d (%v)", version, v, err)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestLegacyVersionZeroOnNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := legacyVersion(conn)
	if err != nil {
		t.Fatalf("legacyVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected legacy version 0 on empty database, got %d", version)
	}
}

func TestLegacyVersionStopsAtFirstMissingMarker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "partial.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	// run_reports without source_metadata must not count as version 2.
	for _, stmt := range []string{
		"CREATE TABLE documents (kind TEXT, id TEXT, body TEXT)",
		"CREATE TABLE run_reports (id INTEGER PRIMARY KEY)",
	} {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	version, err := legacyVersion(conn)
	if err != nil {
		t.Fatalf("legacyVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected legacy version 0, got %d", version)
	}

	if _, err := conn.Exec("CREATE TABLE source_metadata (link TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("create source_metadata: %v", err)
	}
	if version, _ = legacyVersion(conn); version != 2 {
		t.Errorf("expected legacy version 2, got %d", version)
	}
}
