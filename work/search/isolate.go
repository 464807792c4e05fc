package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamhub/work/client"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"
)

// Task is one per-source unit of search work.
type Task func(ctx context.Context) ([]types.SearchResultItem, error)

// Outcome is the settled result of one isolated task. Err is set exactly when the
// task failed, in which case Items is empty.
type Outcome struct {
	SourceKey  string
	SourceName string
	Items      []types.SearchResultItem
	Err        error
	Elapsed    time.Duration
}

// OK reports whether the task succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Isolate runs task under its own timeout derived from ctx and converts every failure,
// panics included, into an Outcome. Siblings sharing ctx are never cancelled by it.
func Isolate(ctx context.Context, source types.CatalogSource, timeout time.Duration, task Task) (out Outcome) {
	out = Outcome{SourceKey: source.Key, SourceName: source.Name}
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		out.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			out.Items = nil
			out.Err = fmt.Errorf("source task panicked: %v", r)
		}
		label := outcomeLabel(out.Err)
		metrics.SearchSourceOutcomes.WithLabelValues(source.Key, label).Inc()
		if out.Err != nil {
			logger.Warn("{search/isolate - Isolate} source %s failed after %v (%s): %v", source.Key, out.Elapsed.Round(time.Millisecond), label, out.Err)
		} else {
			logger.Debug("{search/isolate - Isolate} source %s returned %d items in %v", source.Key, len(out.Items), out.Elapsed.Round(time.Millisecond))
		}
	}()

	items, err := task(taskCtx)
	// a task that ignores its context still loses once the deadline has passed
	if err == nil && taskCtx.Err() != nil {
		err = taskCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", client.ErrSourceTimeout, err)
		}
	}
	if err != nil {
		out.Err = err
		return out
	}
	out.Items = items
	return out
}

// outcomeLabel maps an error onto the metric label set.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, client.ErrSourceTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, client.ErrUpstreamStatus):
		return "status"
	case errors.Is(err, client.ErrSourceMalformedResponse):
		return "malformed"
	case errors.Is(err, client.ErrSourceUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
