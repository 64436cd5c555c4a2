package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Well-known instance_state keys.
const (
	StateInstanceID   = "instance_id"
	StateLastEndpoint = "last_endpoint"
)

// GetState returns a single instance state value. Returns NotFoundError
// when the key has never been set.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM instance_state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", NotFoundError{Entity: "instance state", Key: key}
	}
	if err != nil {
		return "", fmt.Errorf("config: get state %q: %w", key, err)
	}
	return value, nil
}

// SetState upserts a single instance state value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	return s.withWriteTx(ctx, "set state", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO instance_state (key, value, updated_at)
            VALUES (?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(key) DO UPDATE SET
                value = excluded.value,
                updated_at = CURRENT_TIMESTAMP
        `, key, value)
		if err != nil {
			return fmt.Errorf("config: exec set state %q: %w", key, err)
		}
		return nil
	})
}

// EnsureInstanceID returns the stable identifier for this installation,
// generating and persisting one on first use.
func (s *Store) EnsureInstanceID(ctx context.Context) (string, error) {
	id, err := s.GetState(ctx, StateInstanceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !IsNotFound(err) {
		return "", err
	}

	id = uuid.NewString()
	if err := s.SetState(ctx, StateInstanceID, id); err != nil {
		return "", fmt.Errorf("config: persist instance id: %w", err)
	}
	return id, nil
}
