package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"streamhub/work/config"
	"streamhub/work/types"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister []types.LiveSource

func (l staticLister) ListLiveSources(context.Context) ([]types.LiveSource, error) {
	return l, nil
}

type countingRefresher struct {
	calls atomic.Int32
	fail  string
}

func (r *countingRefresher) Refresh(_ context.Context, key string) (int, error) {
	r.calls.Add(1)
	if key == r.fail {
		return 0, errors.New("boom")
	}
	return 3, nil
}

type storedSetting struct{ v *bool }

func (s storedSetting) GetAutoRefresh(context.Context) (*bool, error) { return s.v, nil }

func boolPtr(b bool) *bool { return &b }

func TestRefreshAll(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	refresher := &countingRefresher{fail: "b"}
	lister := staticLister{{Key: "c"}, {Key: "a"}, {Key: "b"}, {Key: "off", Disabled: true}}
	rm := NewRefreshManager(&config.Config{}, refresher, lister, nil, pool)

	results := rm.RefreshAll(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, Result{SourceKey: "a", Count: 3}, results[0])
	assert.Equal(t, "b", results[1].SourceKey)
	assert.Equal(t, "boom", results[1].Error)
	assert.Zero(t, results[1].Count)
	assert.Equal(t, int32(3), refresher.calls.Load())
}

func TestAutoRefreshPrecedence(t *testing.T) {
	cfg := &config.Config{AutoRefresh: boolPtr(true)}
	rm := NewRefreshManager(cfg, &countingRefresher{}, staticLister{}, storedSetting{v: boolPtr(false)}, nil)
	ctx := context.Background()

	assert.False(t, rm.AutoRefreshEnabled(ctx), "stored setting beats config")

	rm.SetOverride(boolPtr(true))
	assert.True(t, rm.AutoRefreshEnabled(ctx), "override beats stored setting")

	rm.SetOverride(nil)
	rm.settings = storedSetting{}
	assert.True(t, rm.AutoRefreshEnabled(ctx), "config applies when nothing is stored")

	assert.False(t, NewRefreshManager(&config.Config{}, nil, nil, nil, nil).AutoRefreshEnabled(ctx))
}

func TestLoopRefreshesOnlyWhenEnabled(t *testing.T) {
	refresher := &countingRefresher{}
	cfg := &config.Config{RefreshInterval: 10 * time.Millisecond}
	rm := NewRefreshManager(cfg, refresher, staticLister{{Key: "a"}}, nil, nil)

	rm.Start()
	rm.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, refresher.calls.Load())

	rm.SetOverride(boolPtr(true))
	require.Eventually(t, func() bool { return refresher.calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	rm.Stop()
	rm.Stop()
	n := refresher.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, refresher.calls.Load())
}
