package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SettingLastDatasetRoot stores the most recent export destination so the
// next save can offer it back.
const SettingLastDatasetRoot = "last_dataset_root"

// Setting returns the stored value for a key, or empty string when unset.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a key/value pair, replacing any prior value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key required")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// LastDatasetRoot returns the persisted export destination root, if any.
func (s *Store) LastDatasetRoot(ctx context.Context) (string, error) {
	return s.Setting(ctx, SettingLastDatasetRoot)
}

// SetLastDatasetRoot persists the export destination root for reuse.
func (s *Store) SetLastDatasetRoot(ctx context.Context, root string) error {
	return s.SetSetting(ctx, SettingLastDatasetRoot, strings.TrimSpace(root))
}
