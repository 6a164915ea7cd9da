package database

import "database/sql"

// ReplaceRankSnapshots swaps the stored ranking of a kind for snaps.
func (db *DB) ReplaceRankSnapshots(kind string, snaps []RankSnapshot) error {
	return withTx(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM rank_snapshots WHERE kind = ?", kind); err != nil {
			return err
		}
		for _, s := range snaps {
			if _, err := tx.Exec(
				`INSERT INTO rank_snapshots (kind, id, position, score, recency, velocity, ranked_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				kind, s.ID, s.Position, s.Score, s.Recency, s.Velocity, s.RankedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRankSnapshots returns the stored ranking of a kind, best first.
func (db *DB) GetRankSnapshots(kind string) ([]RankSnapshot, error) {
	rows, err := db.conn.Query(
		`SELECT kind, id, position, score, recency, velocity, ranked_at
		FROM rank_snapshots WHERE kind = ? ORDER BY position`, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []RankSnapshot
	for rows.Next() {
		var s RankSnapshot
		if err := rows.Scan(&s.Kind, &s.ID, &s.Position, &s.Score,
			&s.Recency, &s.Velocity, &s.RankedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// GetLastRankedAt returns when any kind was last ranked.
// Returns empty string if nothing has been ranked.
func (db *DB) GetLastRankedAt() (string, error) {
	var rankedAt sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(ranked_at) FROM rank_snapshots").Scan(&rankedAt); err != nil {
		return "", err
	}
	return rankedAt.String, nil
}

// InsertReport records a pipeline run.
func (db *DB) InsertReport(r RunReport) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO run_reports (events_added, sources_enriched, dropped, items_ranked)
		VALUES (?, ?, ?, ?)`,
		r.EventsAdded, r.SourcesEnriched, r.Dropped, r.ItemsRanked,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLastReport returns the most recent run report, or nil.
func (db *DB) GetLastReport() (*RunReport, error) {
	row := db.conn.QueryRow(
		`SELECT id, events_added, sources_enriched, dropped, items_ranked, generated_at
		FROM run_reports ORDER BY id DESC LIMIT 1`,
	)

	var r RunReport
	if err := row.Scan(&r.ID, &r.EventsAdded, &r.SourcesEnriched, &r.Dropped,
		&r.ItemsRanked, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM documents WHERE kind = 'story'", &s.Stories},
		{"SELECT COUNT(*) FROM documents WHERE kind = 'theme'", &s.Themes},
		{"SELECT COALESCE(SUM(json_array_length(body, '$.timeline')), 0) FROM documents", &s.Events},
		{"SELECT COUNT(*) FROM source_metadata WHERE failed = 0", &s.CachedSources},
		{"SELECT COUNT(*) FROM source_metadata WHERE failed = 1", &s.FailedSources},
		{"SELECT COUNT(*) FROM rank_snapshots", &s.RankedItems},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
