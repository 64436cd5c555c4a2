package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LoadDocument returns the raw settings document and its updated_at stamp.
// Returns NotFoundError when no document has been saved yet.
func (s *Store) LoadDocument(ctx context.Context) (string, time.Time, error) {
	var (
		document  string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, updated_at FROM settings_document WHERE id = 1`,
	).Scan(&document, &updatedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, NotFoundError{Entity: "settings document"}
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("config: load settings document: %w", err)
	}

	stamp, parseErr := time.Parse(time.RFC3339Nano, updatedAt)
	if parseErr != nil {
		// Tolerate a corrupt stamp; the document itself is still usable.
		stamp = time.Time{}
	}
	return document, stamp, nil
}

// SaveDocument replaces the settings document in full and stamps updated_at.
func (s *Store) SaveDocument(ctx context.Context, document string) error {
	return s.withWriteTx(ctx, "save settings document", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err := tx.ExecContext(ctx, `
            INSERT INTO settings_document (id, document, updated_at)
            VALUES (1, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                document = excluded.document,
                updated_at = excluded.updated_at
        `, document, now)
		if err != nil {
			return fmt.Errorf("config: exec save settings document: %w", err)
		}
		return nil
	})
}
