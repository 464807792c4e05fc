package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"streamhub/work/types"
)

// PersistChannelList replaces the stored channel list of a live source in one
// transaction.
func (db *DB) PersistChannelList(ctx context.Context, sourceKey string, channels []types.Channel) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM channels WHERE source_key = ?", sourceKey); err != nil {
		return fmt.Errorf("failed to clear channels for %s: %w", sourceKey, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO channels (source_key, position, name, url, logo, group_title, tvg_id, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare channel insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range channels {
		if _, err := stmt.ExecContext(ctx, sourceKey, i, ch.Name, ch.URL, ch.Logo, ch.Group, ch.TvgID, ch.Disabled); err != nil {
			return fmt.Errorf("failed to insert channel %q: %w", ch.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE live_sources SET channels_fetched_at = ? WHERE key = ?",
		time.Now().UnixMilli(), sourceKey,
	); err != nil {
		return fmt.Errorf("failed to stamp channel list for %s: %w", sourceKey, err)
	}

	return tx.Commit()
}

// PersistChannelCount records the last known channel count of a live source.
func (db *DB) PersistChannelCount(ctx context.Context, sourceKey string, count int) error {
	_, err := db.ExecContext(ctx,
		"UPDATE live_sources SET channel_count = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ?",
		count, sourceKey,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel count for %s: %w", sourceKey, err)
	}
	return nil
}

// LoadChannelList returns the stored channel list for a live source, if one was ever
// persisted.
func (db *DB) LoadChannelList(ctx context.Context, sourceKey string) (*types.ChannelList, bool, error) {
	var fetchedAt int64
	err := db.QueryRowContext(ctx, "SELECT channels_fetched_at FROM live_sources WHERE key = ?", sourceKey).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && fetchedAt == 0) {
		// unknown source or never persisted
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load live source %s: %w", sourceKey, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, url, logo, group_title, tvg_id, disabled
		FROM channels
		WHERE source_key = ?
		ORDER BY position
	`, sourceKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load channels for %s: %w", sourceKey, err)
	}
	defer rows.Close()

	list := &types.ChannelList{SourceKey: sourceKey, FetchedAt: time.UnixMilli(fetchedAt)}
	for rows.Next() {
		var ch types.Channel
		if err := rows.Scan(&ch.Name, &ch.URL, &ch.Logo, &ch.Group, &ch.TvgID, &ch.Disabled); err != nil {
			return nil, false, fmt.Errorf("failed to scan channel: %w", err)
		}
		list.Channels = append(list.Channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// LoadAllChannelLists returns every persisted channel list, used to warm the channel
// cache on start.
func (db *DB) LoadAllChannelLists(ctx context.Context) ([]*types.ChannelList, error) {
	sources, err := db.ListLiveSources(ctx)
	if err != nil {
		return nil, err
	}

	var lists []*types.ChannelList
	for _, src := range sources {
		list, ok, err := db.LoadChannelList(ctx, src.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			lists = append(lists, list)
		}
	}
	return lists, nil
}
