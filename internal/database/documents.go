package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertDocument inserts a document or replaces the body of an existing one.
// created_at is kept on replace.
func (db *DB) UpsertDocument(kind, id string, body map[string]any) error {
	if id == "" {
		return fmt.Errorf("document of kind %s has no id", kind)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", kind, id, err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO documents (kind, id, body) VALUES (?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET body = excluded.body, updated_at = datetime('now')`,
		kind, id, string(data),
	)
	return err
}

// GetDocument returns a single document, or nil if it does not exist.
func (db *DB) GetDocument(kind, id string) (*Document, error) {
	row := db.conn.QueryRow(
		`SELECT kind, id, body, created_at, updated_at FROM documents WHERE kind = ? AND id = ?`,
		kind, id,
	)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDocuments returns all documents of a kind ordered by id. An empty kind
// lists every document.
func (db *DB) ListDocuments(kind string) ([]Document, error) {
	query := `SELECT kind, id, body, created_at, updated_at FROM documents`
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY kind, id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Returns false if it did not exist.
func (db *DB) DeleteDocument(kind, id string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM documents WHERE kind = ? AND id = ?", kind, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revision returns a counter that changes whenever a document of kind is
// inserted, replaced or deleted, by any connection. It is 0 for a kind that
// was never written.
func (db *DB) Revision(kind string) (int64, error) {
	var rev int64
	err := db.conn.QueryRow(
		`SELECT revision FROM document_revisions WHERE kind = ?`, kind,
	).Scan(&rev)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return rev, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var d Document
	var body string
	if err := s.Scan(&d.Kind, &d.ID, &body, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(body), &d.Body); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", d.Kind, d.ID, err)
	}
	if d.Body == nil {
		d.Body = map[string]any{}
	}
	return &d, nil
}
