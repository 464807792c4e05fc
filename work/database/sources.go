package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamhub/work/types"
)

// ListEnabledSources returns enabled catalog sources in configured order.
func (db *DB) ListEnabledSources(ctx context.Context) ([]types.CatalogSource, error) {
	return db.listCatalogSources(ctx, "WHERE disabled = 0")
}

// ListCatalogSources returns every catalog source, disabled ones included.
func (db *DB) ListCatalogSources(ctx context.Context) ([]types.CatalogSource, error) {
	return db.listCatalogSources(ctx, "")
}

func (db *DB) listCatalogSources(ctx context.Context, where string) ([]types.CatalogSource, error) {
	query := `
		SELECT key, name, api, detail, user_agent, adult, disabled
		FROM catalog_sources ` + where + `
		ORDER BY position, key
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog sources: %w", err)
	}
	defer rows.Close()

	var sources []types.CatalogSource
	for rows.Next() {
		var src types.CatalogSource
		if err := rows.Scan(&src.Key, &src.Name, &src.API, &src.Detail, &src.UserAgent, &src.Adult, &src.Disabled); err != nil {
			return nil, fmt.Errorf("failed to scan catalog source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SaveCatalogSource inserts or updates a catalog source.
func (db *DB) SaveCatalogSource(ctx context.Context, src types.CatalogSource, position int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO catalog_sources (key, name, api, detail, user_agent, adult, disabled, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			api = excluded.api,
			detail = excluded.detail,
			user_agent = excluded.user_agent,
			adult = excluded.adult,
			disabled = excluded.disabled,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
	`, src.Key, src.Name, src.API, src.Detail, src.UserAgent, src.Adult, src.Disabled, position)
	if err != nil {
		return fmt.Errorf("failed to save catalog source %s: %w", src.Key, err)
	}
	return nil
}

// GetLiveSource looks up one live source by key.
func (db *DB) GetLiveSource(ctx context.Context, key string) (types.LiveSource, bool, error) {
	var src types.LiveSource
	err := db.QueryRowContext(ctx, `
		SELECT key, name, url, user_agent, disabled, channel_count
		FROM live_sources WHERE key = ?
	`, key).Scan(&src.Key, &src.Name, &src.URL, &src.UserAgent, &src.Disabled, &src.ChannelCount)
	if errors.Is(err, sql.ErrNoRows) {
		return types.LiveSource{}, false, nil
	}
	if err != nil {
		return types.LiveSource{}, false, fmt.Errorf("failed to load live source %s: %w", key, err)
	}
	return src, true, nil
}

// ListLiveSources returns every live source in configured order.
func (db *DB) ListLiveSources(ctx context.Context) ([]types.LiveSource, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, name, url, user_agent, disabled, channel_count
		FROM live_sources
		ORDER BY position, key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load live sources: %w", err)
	}
	defer rows.Close()

	var sources []types.LiveSource
	for rows.Next() {
		var src types.LiveSource
		if err := rows.Scan(&src.Key, &src.Name, &src.URL, &src.UserAgent, &src.Disabled, &src.ChannelCount); err != nil {
			return nil, fmt.Errorf("failed to scan live source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SaveLiveSource inserts or updates a live source. The stored channel count is kept.
func (db *DB) SaveLiveSource(ctx context.Context, src types.LiveSource, position int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO live_sources (key, name, url, user_agent, disabled, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			user_agent = excluded.user_agent,
			disabled = excluded.disabled,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
	`, src.Key, src.Name, src.URL, src.UserAgent, src.Disabled, position)
	if err != nil {
		return fmt.Errorf("failed to save live source %s: %w", src.Key, err)
	}
	return nil
}

// DeleteLiveSource removes a live source; its channels go with it.
func (db *DB) DeleteLiveSource(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM live_sources WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete live source %s: %w", key, err)
	}
	return nil
}
