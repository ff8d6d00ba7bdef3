package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CursorKey is the well-known KV key the persisted sync cursor lives under.
// An absent or empty value means "full resync required".
const CursorKey = "sync_cursor"

// GetValue reads one durable key-value entry. Returns ErrValueNotFound for
// an unknown key.
func (s *Store) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrValueNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read value %q: %w", key, err)
	}
	return value, nil
}

// SetValue writes one durable key-value entry, replacing any prior value.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertValue, key, value); err != nil {
		return fmt.Errorf("failed to write value %q: %w", key, err)
	}
	return nil
}
