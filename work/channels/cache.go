package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/parser"
	"streamhub/work/types"
	"streamhub/work/utils"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// maxListSize bounds a channel list body read into memory.
var maxListSize int64 = 32 << 20

// persistGrace is the extra time a shared refresh gets to write its result back
// after the fetch deadline.
const persistGrace = 30 * time.Second

// TopicRefreshed is the notifier topic published after a successful refresh.
const TopicRefreshed = "channels.refreshed"

var (
	ErrUnknownSource  = errors.New("unknown live source")
	ErrSourceDisabled = errors.New("live source is disabled")
	ErrUnknownChannel = errors.New("unknown channel")
)

// RefreshEvent is the payload published on TopicRefreshed.
type RefreshEvent struct {
	SourceKey string    `json:"source"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Cache holds one immutable ChannelList per live source. Entries are replaced whole,
// so readers never observe a partially written list.
type Cache struct {
	cfg      *config.Config
	client   *client.Client
	store    types.LiveSourceStore
	notifier types.Notifier
	timeout  time.Duration

	entries *xsync.MapOf[string, *types.ChannelList]
	group   singleflight.Group
}

// New creates a Cache. A nil notifier falls back to LogNotifier.
func New(cfg *config.Config, c *client.Client, store types.LiveSourceStore, notifier types.Notifier) *Cache {
	if notifier == nil {
		notifier = LogNotifier()
	}
	return &Cache{
		cfg:      cfg,
		client:   c,
		store:    store,
		notifier: notifier,
		timeout:  cfg.ChannelTimeout,
		entries:  xsync.NewMapOf[string, *types.ChannelList](),
	}
}

// Get returns the cached list for key without touching the network.
func (c *Cache) Get(key string) (*types.ChannelList, bool) {
	return c.entries.Load(key)
}

// Refresh re-fetches and re-parses the source's channel list and swaps it in.
// Concurrent refreshes of the same key share one upstream fetch. The shared fetch
// is bounded by the cache's own timeout, not by any one caller: a caller whose ctx
// ends stops waiting and gets ctx.Err(), while the others still get the result.
// On failure the previous entry is left untouched and the returned count is zero.
func (c *Cache) Refresh(ctx context.Context, key string) (int, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout+persistGrace)
		defer cancel()
		return c.refresh(shared, key)
	})

	select {
	case <-ctx.Done():
		logger.Debug("{channels/cache - Refresh} caller left refresh of %s: %v", key, ctx.Err())
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		if res.Shared {
			logger.Debug("{channels/cache - Refresh} coalesced refresh for %s", key)
		}
		return res.Val.(int), nil
	}
}

func (c *Cache) refresh(ctx context.Context, key string) (int, error) {
	source, ok, err := c.store.GetLiveSource(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to load live source %s: %w", key, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	if source.Disabled {
		return 0, fmt.Errorf("%w: %s", ErrSourceDisabled, key)
	}

	list, err := c.fetch(ctx, source)
	if err != nil {
		metrics.ChannelRefreshes.WithLabelValues(key, "error").Inc()
		logger.Warn("{channels/cache - refresh} refresh of %s failed, keeping previous list: %v", key, err)
		return 0, err
	}

	c.entries.Store(key, list)
	metrics.ChannelRefreshes.WithLabelValues(key, "ok").Inc()

	count := len(list.Channels)
	if err := c.store.PersistChannelList(ctx, key, list.Channels); err != nil {
		logger.Error("{channels/cache - refresh} failed to persist channels for %s: %v", key, err)
	}
	if err := c.store.PersistChannelCount(ctx, key, count); err != nil {
		logger.Error("{channels/cache - refresh} failed to persist channel count for %s: %v", key, err)
	}

	c.notifier.Notify(ctx, TopicRefreshed, RefreshEvent{SourceKey: key, Count: count, FetchedAt: list.FetchedAt})
	logger.Info("{channels/cache - refresh} %s refreshed with %d channels", key, count)
	return count, nil
}

func (c *Cache) fetch(ctx context.Context, source types.LiveSource) (*types.ChannelList, error) {
	resp, err := c.client.Fetch(ctx, client.Request{
		Kind:      client.KindSource,
		URL:       source.URL,
		Timeout:   c.timeout,
		UserAgent: source.UserAgent,
		LimitKey:  source.Key,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", client.ErrSourceUnreachable, err)
	}
	if int64(len(data)) > maxListSize {
		return nil, fmt.Errorf("%w: channel list larger than %d bytes", client.ErrSourceMalformedResponse, maxListSize)
	}

	parsed, format, err := parser.ParseChannelList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrSourceMalformedResponse, err)
	}
	logger.Debug("{channels/cache - fetch} parsed %d channels from %s as %s", len(parsed), utils.LogURL(c.cfg, source.URL), format)

	// carry disabled flags across refreshes
	if prev, ok := c.entries.Load(source.Key); ok {
		disabled := make(map[string]bool)
		for _, ch := range prev.Channels {
			if ch.Disabled {
				disabled[ch.Name] = true
			}
		}
		for i := range parsed {
			parsed[i].Disabled = disabled[parsed[i].Name]
		}
	}

	return &types.ChannelList{SourceKey: source.Key, Channels: parsed, FetchedAt: time.Now()}, nil
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key string) {
	c.entries.Delete(key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries.Clear()
}

// Keys returns the source keys currently cached.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, c.entries.Size())
	c.entries.Range(func(key string, _ *types.ChannelList) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Put replaces the entry for key with an externally edited list. The list is
// persisted first; the cache only changes once the store has accepted it.
func (c *Cache) Put(ctx context.Context, key string, channels []types.Channel) error {
	_, ok, err := c.store.GetLiveSource(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load live source %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}

	list := &types.ChannelList{
		SourceKey: key,
		Channels:  append([]types.Channel(nil), channels...),
		FetchedAt: time.Now(),
	}
	if err := c.store.PersistChannelList(ctx, key, list.Channels); err != nil {
		return fmt.Errorf("failed to persist channels for %s: %w", key, err)
	}
	if err := c.store.PersistChannelCount(ctx, key, len(list.Channels)); err != nil {
		return fmt.Errorf("failed to persist channel count for %s: %w", key, err)
	}

	c.entries.Store(key, list)
	return nil
}

// Seed installs a previously persisted list without persisting it again.
func (c *Cache) Seed(list *types.ChannelList) {
	if list == nil || list.SourceKey == "" {
		return
	}
	c.entries.Store(list.SourceKey, list)
}

// SetChannelDisabled toggles one channel's disabled flag. The list is copied and
// swapped in, never mutated in place.
func (c *Cache) SetChannelDisabled(ctx context.Context, key, name string, disabled bool) error {
	var (
		found   bool
		updated *types.ChannelList
	)
	c.entries.Compute(key, func(old *types.ChannelList, loaded bool) (*types.ChannelList, bool) {
		if !loaded {
			return old, true
		}
		next := &types.ChannelList{
			SourceKey: old.SourceKey,
			Channels:  append([]types.Channel(nil), old.Channels...),
			FetchedAt: old.FetchedAt,
		}
		for i := range next.Channels {
			if next.Channels[i].Name == name {
				next.Channels[i].Disabled = disabled
				found = true
			}
		}
		if !found {
			return old, false
		}
		updated = next
		return next, false
	})

	if updated == nil {
		return fmt.Errorf("%w: %s/%s", ErrUnknownChannel, key, name)
	}
	return c.store.PersistChannelList(ctx, key, updated.Channels)
}
