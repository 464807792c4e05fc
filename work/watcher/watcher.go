package watcher

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/types"

	"github.com/panjf2000/ants/v2"
)

// Refresher re-fetches one live source's channel list.
type Refresher interface {
	Refresh(ctx context.Context, key string) (int, error)
}

// SourceLister enumerates configured live sources.
type SourceLister interface {
	ListLiveSources(ctx context.Context) ([]types.LiveSource, error)
}

// SettingsStore exposes the stored auto-refresh preference; nil means unset.
type SettingsStore interface {
	GetAutoRefresh(ctx context.Context) (*bool, error)
}

// Result is the outcome of refreshing one live source.
type Result struct {
	SourceKey string `json:"source"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
}

// RefreshManager periodically refreshes every enabled live source while auto-refresh
// is on. It starts disabled and must be started explicitly.
//
// Whether a tick actually refreshes is decided on every tick, so a changed stored
// setting or runtime override takes effect without a restart.
type RefreshManager struct {
	refresher  Refresher
	lister     SourceLister
	settings   SettingsStore
	pool       *ants.Pool
	interval   time.Duration
	configured *bool

	override atomic.Pointer[bool]
	enabled  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewRefreshManager builds a manager. settings and pool may be nil.
func NewRefreshManager(cfg *config.Config, refresher Refresher, lister SourceLister, settings SettingsStore, pool *ants.Pool) *RefreshManager {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &RefreshManager{
		refresher:  refresher,
		lister:     lister,
		settings:   settings,
		pool:       pool,
		interval:   interval,
		configured: cfg.AutoRefresh,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the background ticker. Calling it twice is a no-op.
func (rm *RefreshManager) Start() {
	if !rm.enabled.CompareAndSwap(false, true) {
		return
	}
	go rm.loop()
	logger.Info("{watcher - Start} live source refresh checks every %s", rm.interval)
}

// Stop terminates the ticker and waits for an in-flight round to finish.
func (rm *RefreshManager) Stop() {
	if !rm.enabled.CompareAndSwap(true, false) {
		return
	}
	close(rm.stopChan)
	<-rm.done
}

// SetOverride sets the runtime override; nil clears it.
func (rm *RefreshManager) SetOverride(v *bool) {
	rm.override.Store(v)
}

// AutoRefreshEnabled resolves the effective flag: override, then stored setting, then
// config file, then false.
func (rm *RefreshManager) AutoRefreshEnabled(ctx context.Context) bool {
	var stored *bool
	if rm.settings != nil {
		v, err := rm.settings.GetAutoRefresh(ctx)
		if err != nil {
			logger.Warn("{watcher - AutoRefreshEnabled} failed to read stored setting: %v", err)
		} else {
			stored = v
		}
	}
	return config.ResolveAutoRefresh(rm.override.Load(), stored, rm.configured)
}

func (rm *RefreshManager) loop() {
	defer close(rm.done)

	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-rm.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			if !rm.AutoRefreshEnabled(ctx) {
				logger.Debug("{watcher - loop} auto-refresh is off, skipping round")
				continue
			}
			rm.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every enabled live source concurrently and returns the results
// sorted by source key. Failures are reported per source and never abort the round.
func (rm *RefreshManager) RefreshAll(ctx context.Context) []Result {
	sources, err := rm.lister.ListLiveSources(ctx)
	if err != nil {
		logger.Error("{watcher - RefreshAll} failed to list live sources: %v", err)
		return nil
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]Result, 0, len(sources))
	)
	for _, src := range sources {
		if src.Disabled {
			continue
		}
		key := src.Key
		wg.Add(1)
		rm.submit(func() {
			defer wg.Done()
			count, err := rm.refresher.Refresh(ctx, key)
			r := Result{SourceKey: key, Count: count}
			if err != nil {
				r.Error = err.Error()
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		})
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].SourceKey < results[j].SourceKey })
	logger.Info("{watcher - RefreshAll} refreshed %d live sources", len(results))
	return results
}

func (rm *RefreshManager) submit(fn func()) {
	if rm.pool != nil {
		if err := rm.pool.Submit(fn); err == nil {
			return
		}
	}
	go fn()
}
