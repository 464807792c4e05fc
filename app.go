package main

import (
	"context"
	"fmt"

	"streamhub/work/buffer"
	"streamhub/work/catalog"
	"streamhub/work/channels"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/database"
	"streamhub/work/logger"
	"streamhub/work/proxy"
	"streamhub/work/search"
	"streamhub/work/watcher"

	"github.com/panjf2000/ants/v2"
)

// app holds every long-lived component; it is built once per command.
type app struct {
	cfg        *config.Config
	db         *database.DB
	pool       *ants.Pool
	client     *client.Client
	aggregator *search.Aggregator
	proxy      *proxy.Proxy
	channels   *channels.Cache
	refresher  *watcher.RefreshManager
}

// newApp opens the store, seeds it from the config file and wires the components.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.SeedFromConfig(ctx, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed sources: %w", err)
	}

	pool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	httpClient := client.New(cfg)

	var supplemental search.SupplementalProvider
	if s := catalog.NewSupplemental(httpClient, cfg.Supplemental); s != nil {
		supplemental = s
	}

	aggregator := search.NewAggregator(
		db,
		catalog.NewCMS(httpClient),
		supplemental,
		pool,
		search.NewCache(cfg.SearchCacheTTL, 1000),
		search.OptionsFromConfig(cfg),
	)

	channelCache := channels.New(cfg, httpClient, db, nil)
	lists, err := db.LoadAllChannelLists(ctx)
	if err != nil {
		logger.Warn("{app - newApp} failed to warm channel cache: %v", err)
	}
	for _, list := range lists {
		channelCache.Seed(list)
	}

	return &app{
		cfg:        cfg,
		db:         db,
		pool:       pool,
		client:     httpClient,
		aggregator: aggregator,
		proxy:      proxy.New(cfg, httpClient, buffer.NewBufferPool(buffer.DefaultChunkSize)),
		channels:   channelCache,
		refresher:  watcher.NewRefreshManager(cfg, channelCache, db, db, pool),
	}, nil
}

// Close stops background work and releases the pool and the store.
func (a *app) Close() {
	a.refresher.Stop()
	a.pool.Release()
	if err := a.db.Close(); err != nil {
		logger.Error("{app - Close} failed to close database: %v", err)
	}
}
