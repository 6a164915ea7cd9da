package database

import (
	"database/sql"
	"fmt"
	"log"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func tableExists(conn *sql.DB, name string) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for table %s: %w", name, err)
	}
	return count > 0, nil
}

// legacyVersion infers the schema version of a database that has tables but
// no user_version, from the marker table of each migration. Markers are
// checked in order and the first missing one stops the scan.
func legacyVersion(conn *sql.DB) (int, error) {
	version := 0
	for _, m := range migrations {
		ok, err := tableExists(conn, m.Marker)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		version = m.Version
	}
	return version, nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		legacy, err := legacyVersion(conn)
		if err != nil {
			return err
		}
		if legacy > 0 {
			log.Printf("detected unversioned database, stamping as version %d", legacy)
			if err := setSchemaVersion(conn, legacy); err != nil {
				return err
			}
			current = legacy
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("applying migration %d: %s", m.Version, m.Description)
		if err := withTx(conn, m.Up); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		// user_version is set outside the transaction (modernc/sqlite requirement).
		// The DDL is idempotent, so a crash here only re-runs the migration.
		if err := setSchemaVersion(conn, m.Version); err != nil {
			return err
		}
	}

	return nil
}

func setSchemaVersion(conn *sql.DB, version int) error {
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("setting version %d: %w", version, err)
	}
	return nil
}
