package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"streamhub/work/config"
	"streamhub/work/logger"
)

// SettingAutoRefresh is the settings key of the stored auto-refresh preference.
const SettingAutoRefresh = "auto_refresh"

// GetSetting returns the raw JSON value stored under key.
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores value JSON-encoded under key.
func (db *DB) SetSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetAutoRefresh returns the stored auto-refresh preference, nil when never set.
func (db *DB) GetAutoRefresh(ctx context.Context) (*bool, error) {
	raw, ok, err := db.GetSetting(ctx, SettingAutoRefresh)
	if err != nil || !ok {
		return nil, err
	}
	var enabled bool
	if err := json.Unmarshal([]byte(raw), &enabled); err != nil {
		return nil, fmt.Errorf("invalid %s setting: %w", SettingAutoRefresh, err)
	}
	return &enabled, nil
}

// SetAutoRefresh stores the auto-refresh preference.
func (db *DB) SetAutoRefresh(ctx context.Context, enabled bool) error {
	return db.SetSetting(ctx, SettingAutoRefresh, enabled)
}

// SeedFromConfig writes the catalog and live sources of cfg into the store. Sources
// already present are updated from the file; sources only in the store are kept.
func (db *DB) SeedFromConfig(ctx context.Context, cfg *config.Config) error {
	for i, src := range cfg.Sources {
		if err := db.SaveCatalogSource(ctx, src, i); err != nil {
			return err
		}
	}
	for i, src := range cfg.LiveSources {
		if err := db.SaveLiveSource(ctx, src, i); err != nil {
			return err
		}
	}

	logger.Debug("{database/config - SeedFromConfig} seeded %d catalog sources and %d live sources", len(cfg.Sources), len(cfg.LiveSources))
	return nil
}
