package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"brokeradmin/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLiteAdminSettingsStorage keeps one settings document per key.
type SQLiteAdminSettingsStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteAdminSettingsStorage creates a new SQLite-based settings storage
func NewSQLiteAdminSettingsStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteAdminSettingsStorage {
	return &SQLiteAdminSettingsStorage{sqlite: sqlite, logger: logger}
}

// FindAdminSettingsByKey returns ErrSettingsNotFound when the key has never been saved.
func (s *SQLiteAdminSettingsStorage) FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error) {
	var id, raw, createdAt string
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT id, json_value, created_at FROM admin_settings WHERE key = ?`, key).
		Scan(&id, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin settings %q: %w", key, err)
	}

	settings := &core.AdminSettings{Key: key, CreatedTime: parseTime(createdAt)}
	if settings.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt admin settings id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &settings.JSONValue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admin settings %q: %w", key, err)
	}
	return settings, nil
}

// SaveAdminSettings replaces the whole document stored under settings.Key.
// The record keeps its original id and creation time across updates.
func (s *SQLiteAdminSettingsStorage) SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error) {
	value := settings.JSONValue
	if value == nil {
		value = core.SettingsPayload{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admin settings: %w", err)
	}

	id := settings.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	var storedID, createdAt string
	err = s.sqlite.WriteDB.QueryRowContext(ctx, `
		INSERT INTO admin_settings (id, key, json_value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET json_value = excluded.json_value
		RETURNING id, created_at`,
		id.String(), settings.Key, string(raw), formatTime(now)).Scan(&storedID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save admin settings %q: %w", settings.Key, err)
	}

	saved := &core.AdminSettings{
		Key:         settings.Key,
		JSONValue:   value.Clone(),
		CreatedTime: parseTime(createdAt),
	}
	if saved.ID, err = uuid.Parse(storedID); err != nil {
		return nil, fmt.Errorf("corrupt admin settings id %q: %w", storedID, err)
	}

	s.logger.Debugw("Saved admin settings", "key", settings.Key)
	return saved, nil
}
