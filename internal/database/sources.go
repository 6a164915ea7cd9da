package database

import "database/sql"

// GetSourceMetadata returns cached metadata for a source link, or nil.
func (db *DB) GetSourceMetadata(link string) (*SourceMetadata, error) {
	row := db.conn.QueryRow(
		`SELECT link, title, site_name, image_url, published_at, failed, fetched_at
		FROM source_metadata WHERE link = ?`, link,
	)

	var m SourceMetadata
	var failed int
	if err := row.Scan(&m.Link, &m.Title, &m.SiteName, &m.ImageURL,
		&m.PublishedAt, &failed, &m.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.Failed = failed != 0
	return &m, nil
}

// UpsertSourceMetadata inserts or replaces the cached metadata for a link.
func (db *DB) UpsertSourceMetadata(m SourceMetadata) error {
	failed := 0
	if m.Failed {
		failed = 1
	}
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO source_metadata
		(link, title, site_name, image_url, published_at, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Link, m.Title, m.SiteName, m.ImageURL, m.PublishedAt, failed,
	)
	return err
}
