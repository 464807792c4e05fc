package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"
)

// Event types emitted by Stream.
const (
	EventStart        = "start"
	EventSourceResult = "source_result"
	EventSourceError  = "source_error"
	EventComplete     = "complete"
)

// Event is one message of a streaming search. Completed and Total are running counts
// at the moment the event was produced.
type Event struct {
	Type         string                   `json:"type"`
	Query        string                   `json:"query,omitempty"`
	TotalSources int                      `json:"totalSources,omitempty"`
	Source       string                   `json:"source,omitempty"`
	SourceName   string                   `json:"sourceName,omitempty"`
	Results      []types.SearchResultItem `json:"results,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Completed    int                      `json:"completedSources"`
	Total        int                      `json:"total"`
}

// Sink serializes event writes and turns every write after Close into a no-op.
// A failed write closes the sink.
type Sink struct {
	mu     sync.Mutex
	closed bool
	write  func(Event) error
}

// NewSink wraps write, which is never called concurrently.
func NewSink(write func(Event) error) *Sink {
	return &Sink{write: write}
}

// Send delivers ev unless the sink is closed. It reports whether ev was written.
func (s *Sink) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if err := s.write(ev); err != nil {
		logger.Debug("{search/stream - Send} sink write failed, closing: %v", err)
		s.closed = true
		return false
	}
	return true
}

// Close marks the sink closed. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether the sink accepts writes.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// session is the per-stream bookkeeping shared by the source tasks.
type session struct {
	mu        sync.Mutex
	completed int
	emitted   int
	limit     int
}

// claim reserves room for up to n results and returns how many were granted,
// together with the running counts after this source settles. Only primary sources
// count towards completed, so it never exceeds the announced totalSources.
// Callers hold s.mu.
func (s *session) claim(n int, primary bool) (granted, completed, emitted int) {
	if primary {
		s.completed++
	}
	granted = min(n, s.limit-s.emitted)
	if granted < 0 {
		granted = 0
	}
	s.emitted += granted
	return granted, s.completed, s.emitted
}

// Stream runs the streaming variant: each source's capped and filtered results are
// pushed to sink the moment that source settles, in completion order. Closing the sink
// does not cancel in-flight upstream calls; cancelling ctx does. The returned error is
// non-nil only when the query is empty or sources cannot be enumerated.
func (a *Aggregator) Stream(ctx context.Context, q Query, sink *Sink) error {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return ErrEmptyQuery
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}()

	sources, err := a.selectSources(ctx, q)
	if err != nil {
		return err
	}

	sess := &session{limit: a.opts.MaxTotalResults}
	sink.Send(Event{Type: EventStart, Query: text, TotalSources: len(sources)})

	a.fanOut(ctx, sources, text, func(_ int, o Outcome) {
		a.emit(sink, sess, o, q)
	})

	if a.supplemental != nil && ctx.Err() == nil && !sink.Closed() {
		sess.mu.Lock()
		room := sess.limit - sess.emitted
		sess.mu.Unlock()
		if room > 0 {
			o := a.querySupplemental(ctx, q, text, room)
			a.emitSettled(sink, sess, o, false)
		}
	}

	sess.mu.Lock()
	completed, emitted := sess.completed, sess.emitted
	sess.mu.Unlock()

	sink.Send(Event{Type: EventComplete, Query: text, TotalSources: len(sources), Completed: completed, Total: emitted})
	logger.Info("{search/stream - Stream} %q: streamed %d results from %d sources in %v",
		text, emitted, completed, time.Since(start).Round(time.Millisecond))
	return nil
}

// emit shapes a primary source outcome and sends it.
func (a *Aggregator) emit(sink *Sink, sess *session, o Outcome, q Query) {
	if o.OK() {
		o.Items = a.shape(o.Items, q)
	}
	a.emitSettled(sink, sess, o, true)
}

// emitSettled records o in the session and sends the matching event. The session lock
// is held across the send so running counts reach the client in increasing order.
// Failures carry only the outcome label; the detail stays in the log.
func (a *Aggregator) emitSettled(sink *Sink, sess *session, o Outcome, primary bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	n := 0
	if o.OK() {
		n = len(o.Items)
	}
	granted, completed, emitted := sess.claim(n, primary)

	if !o.OK() {
		sink.Send(Event{
			Type:       EventSourceError,
			Source:     o.SourceKey,
			SourceName: o.SourceName,
			Error:      outcomeLabel(o.Err),
			Completed:  completed,
			Total:      emitted,
		})
		return
	}

	sink.Send(Event{
		Type:       EventSourceResult,
		Source:     o.SourceKey,
		SourceName: o.SourceName,
		Results:    o.Items[:granted],
		Completed:  completed,
		Total:      emitted,
	})
}
