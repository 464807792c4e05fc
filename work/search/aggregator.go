package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"streamhub/work/config"
	"streamhub/work/filter"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"

	"github.com/panjf2000/ants/v2"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query must not be empty")

// Provider searches one catalog source.
type Provider interface {
	Search(ctx context.Context, source types.CatalogSource, query string) ([]types.SearchResultItem, error)
}

// SupplementalProvider is the low-priority source consulted when primary sources
// leave free result slots.
type SupplementalProvider interface {
	Key() string
	Name() string
	Search(ctx context.Context, query string) ([]types.SearchResultItem, error)
}

// Options bounds one aggregated search.
type Options struct {
	SearchTimeout       time.Duration
	SupplementalTimeout time.Duration
	MaxResultsPerSource int
	MaxTotalResults     int
	Denylist            []string
}

// OptionsFromConfig derives search limits from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SearchTimeout:       cfg.SearchTimeout,
		SupplementalTimeout: cfg.SupplementalTimeout,
		MaxResultsPerSource: cfg.MaxResultsPerSource,
		MaxTotalResults:     cfg.MaxTotalResults(),
		Denylist:            cfg.FilterDenylist,
	}
}

// Query is one search request.
type Query struct {
	Text          string
	IncludeAdult  bool // also query adult-flagged sources
	DisableFilter bool // skip the category denylist
	NoCache       bool // bypass the response cache
}

// Result is the merged non-streaming response.
type Result struct {
	Results []types.SearchResultItem `json:"results"`
}

// Aggregator fans a query out to every enabled catalog source.
type Aggregator struct {
	sources      types.SourceProvider
	provider     Provider
	supplemental SupplementalProvider
	pool         *ants.Pool
	filters      *filter.Manager
	cache        *Cache
	opts         Options
}

// NewAggregator wires an aggregator. supplemental, pool and cache may be nil; without
// a pool each source task gets its own goroutine.
func NewAggregator(sources types.SourceProvider, provider Provider, supplemental SupplementalProvider, pool *ants.Pool, cache *Cache, opts Options) *Aggregator {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 20 * time.Second
	}
	if opts.SupplementalTimeout <= 0 {
		opts.SupplementalTimeout = 15 * time.Second
	}
	if opts.MaxResultsPerSource <= 0 {
		opts.MaxResultsPerSource = 5
	}
	if opts.MaxTotalResults <= 0 {
		opts.MaxTotalResults = 20
	}

	return &Aggregator{
		sources:      sources,
		provider:     provider,
		supplemental: supplemental,
		pool:         pool,
		filters:      filter.NewManager(),
		cache:        cache,
		opts:         opts,
	}
}

// ClearCache drops cached responses and compiled denylists.
func (a *Aggregator) ClearCache() {
	a.cache.Clear()
	a.filters.Clear()
	logger.Info("{search/aggregator - ClearCache} search cache cleared")
}

// selectSources snapshots the enabled source list for this query.
func (a *Aggregator) selectSources(ctx context.Context, q Query) ([]types.CatalogSource, error) {
	all, err := a.sources.ListEnabledSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog sources: %w", err)
	}

	selected := make([]types.CatalogSource, 0, len(all))
	for _, s := range all {
		if s.Disabled || (s.Adult && !q.IncludeAdult) {
			continue
		}
		selected = append(selected, s)
	}
	return selected, nil
}

// submit runs fn on the shared pool, or on a fresh goroutine when no pool is wired
// or the pool rejects the task.
func (a *Aggregator) submit(fn func()) {
	if a.pool != nil {
		err := a.pool.Submit(fn)
		if err == nil {
			return
		}
		logger.Warn("{search/aggregator - submit} worker pool rejected task, using a plain goroutine: %v", err)
	}
	go fn()
}

// fanOut starts one isolated task per source and calls settle as each one finishes.
// settle may be called concurrently. fanOut returns once every task has settled.
func (a *Aggregator) fanOut(ctx context.Context, sources []types.CatalogSource, text string, settle func(i int, o Outcome)) {
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		a.submit(func() {
			defer wg.Done()
			o := Isolate(ctx, src, a.opts.SearchTimeout, func(taskCtx context.Context) ([]types.SearchResultItem, error) {
				return a.provider.Search(taskCtx, src, text)
			})
			settle(i, o)
		})
	}
	wg.Wait()
}

// shape applies the per-source cap then, unless disabled, the denylist.
func (a *Aggregator) shape(items []types.SearchResultItem, q Query) []types.SearchResultItem {
	items = filter.Cap(items, a.opts.MaxResultsPerSource)
	if q.DisableFilter {
		return items
	}
	return filter.Filter(items, a.filters.Get(a.opts.Denylist))
}

// querySupplemental consults the low-priority source. It never fails the search.
func (a *Aggregator) querySupplemental(ctx context.Context, q Query, text string, room int) Outcome {
	ident := types.CatalogSource{Key: a.supplemental.Key(), Name: a.supplemental.Name()}
	o := Isolate(ctx, ident, a.opts.SupplementalTimeout, func(taskCtx context.Context) ([]types.SearchResultItem, error) {
		return a.supplemental.Search(taskCtx, text)
	})
	if !o.OK() {
		return o
	}
	if !q.DisableFilter {
		o.Items = filter.Filter(o.Items, a.filters.Get(a.opts.Denylist))
	}
	o.Items = filter.Cap(o.Items, room)
	return o
}

// Search runs the non-streaming variant. Results follow source-list order. The only
// error besides ErrEmptyQuery is a failure to enumerate sources.
func (a *Aggregator) Search(ctx context.Context, q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, ErrEmptyQuery
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	}()

	sources, err := a.selectSources(ctx, q)
	if err != nil {
		return Result{}, err
	}

	key := CacheKey(q, sources)
	if !q.NoCache {
		if cached, ok := a.cache.Get(key); ok {
			metrics.SearchCacheHits.Inc()
			logger.Debug("{search/aggregator - Search} cache hit for %q", text)
			return cached, nil
		}
	}

	outcomes := make([]Outcome, len(sources))
	a.fanOut(ctx, sources, text, func(i int, o Outcome) {
		outcomes[i] = o
	})

	merged := make([]types.SearchResultItem, 0, a.opts.MaxTotalResults)
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
			continue
		}
		merged = append(merged, filter.Cap(o.Items, a.opts.MaxResultsPerSource)...)
	}
	if !q.DisableFilter {
		merged = filter.Filter(merged, a.filters.Get(a.opts.Denylist))
	}
	merged = filter.Cap(merged, a.opts.MaxTotalResults)

	if a.supplemental != nil && len(merged) < a.opts.MaxTotalResults && ctx.Err() == nil {
		if o := a.querySupplemental(ctx, q, text, a.opts.MaxTotalResults-len(merged)); o.OK() {
			merged = append(merged, o.Items...)
		}
	}
	merged = filter.Cap(merged, a.opts.MaxTotalResults)

	logger.Info("{search/aggregator - Search} %q: %d results from %d sources (%d failed) in %v",
		text, len(merged), len(sources), failed, time.Since(start).Round(time.Millisecond))

	result := Result{Results: merged}
	// a cancelled request may have cut sources short; do not cache a partial view
	if ctx.Err() == nil {
		a.cache.Set(key, result)
	}
	return result, nil
}
