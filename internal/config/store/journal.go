package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// journalKeep bounds the event journal; older rows are pruned on append.
const journalKeep = 200

// JournalEntry records a single lifecycle event.
type JournalEntry struct {
	ID        int64
	Topic     string
	Detail    string
	CreatedAt time.Time
}

// AppendEvent records a lifecycle event and prunes entries beyond the
// retention bound.
func (s *Store) AppendEvent(ctx context.Context, topic, detail string) error {
	return s.withWriteTx(ctx, "append event", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_journal (topic, detail, created_at) VALUES (?, ?, ?)`,
			topic, detail, now,
		); err != nil {
			return fmt.Errorf("config: insert journal entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
            DELETE FROM event_journal WHERE id NOT IN (
                SELECT id FROM event_journal ORDER BY id DESC LIMIT ?
            )
        `, journalKeep); err != nil {
			return fmt.Errorf("config: prune journal: %w", err)
		}
		return nil
	})
}

// RecentEvents returns the newest journal entries, most recent first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > journalKeep {
		limit = journalKeep
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, detail, created_at FROM event_journal ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("config: list journal entries: %w", err)
	}
	defer rows.Close()

	result := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var e JournalEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("config: scan journal entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		} else {
			log.Printf("[Config] journal entry %d: invalid created_at %q", e.ID, createdAt)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
