// Package collector walks paginated message streams backward in time and
// persists them as one file per day, week or month chunk.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"twits-archive-tool/internal/stocktwits"
)

// Collector runs the chunk loop over a Source and writes through a Sink.
type Collector struct {
	src         Source
	sink        Sink
	rec         Recorder
	obs         Observer
	log         *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option customises a Collector.
type Option func(*Collector)

// WithLogger sets the logger for progress and diagnostics.
func WithLogger(l *slog.Logger) Option { return func(c *Collector) { c.log = l } }

// WithRecorder attaches flush bookkeeping.
func WithRecorder(r Recorder) Option { return func(c *Collector) { c.rec = r } }

// WithObserver attaches progress events, typically metrics.
func WithObserver(o Observer) Option { return func(c *Collector) { c.obs = o } }

// WithClock replaces time.Now for anchor defaulting.
func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

// WithConcurrency fetches up to n entities in parallel within one page step.
func WithConcurrency(n int) Option { return func(c *Collector) { c.concurrency = n } }

// New returns a Collector reading from src and writing to sink.
func New(src Source, sink Sink, opts ...Option) *Collector {
	c := &Collector{
		src:  src,
		sink: sink,
		obs:  nopObserver{},
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.obs == nil {
		c.obs = nopObserver{}
	}
	return c
}

func (c *Collector) walker() *Walker {
	return NewWalker(c.src, c.concurrency, c.log, c.obs)
}

// Collect runs the whole chunk loop for req and returns the final state,
// which is not a results payload but tells where the walk stopped.
//
// A request without entities is a logged no-op that returns the initial
// state. Source failures come back as *FetchError.
func (c *Collector) Collect(ctx context.Context, req CollectionRequest) (ChunkState, error) {
	orig, err := req.Normalize(c.now())
	if err != nil {
		return ChunkState{}, err
	}
	initial := orig.initialState()
	if errors.Is(orig.Validate(), ErrNoEntities) {
		c.log.Warn("no symbols or users requested, nothing to collect")
		return initial, nil
	}

	w := c.walker()
	first, err := w.FetchPage(ctx, initial)
	if err != nil {
		return initial, err
	}
	head, ok := CursorOf(first)
	if !ok {
		c.log.Info("source returned no messages", "max", orig.MaxID, "since", orig.SinceID)
		return initial, nil
	}

	state := ChunkState{Request: orig, Anchor: Floor(head.Oldest, orig.Granularity), MaxID: orig.MaxID}
	c.obs.ChunkAdvanced(state.Anchor)
	seq := 0

	for !orig.Anchor.After(state.Anchor) {
		c.progress(orig.Verbose, "walking chunk", "anchor", state.Anchor, "max", state.MaxID)

		res, err := w.Walk(ctx, state)
		if err != nil {
			return state, err
		}
		if res.History.Len() == 0 {
			c.log.Info("source exhausted before reaching anchor",
				"anchor", state.Anchor, "target", orig.Anchor)
			return state, nil
		}

		next, rec, err := c.Flush(ctx, res.History.Flatten(), state, orig)
		if err != nil {
			return state, err
		}
		seq++
		rec.Seq = seq
		if c.rec != nil {
			if err := c.rec.RecordFlush(ctx, rec); err != nil {
				return state, fmt.Errorf("collector: record flush %s: %w", rec.Filename, err)
			}
		}
		c.obs.Flushed(rec)

		next = advance(state, next, orig)
		c.progress(orig.Verbose, "chunk flushed",
			"file", rec.Filename, "written", rec.Written,
			"oldest", res.Cursor.Oldest, "next_anchor", next.Anchor, "next_max", next.MaxID)
		state = next
		c.obs.ChunkAdvanced(state.Anchor)

		if res.Exhausted {
			// Everything older than the chunk anchor is already in this flush.
			c.log.Info("source exhausted before reaching anchor",
				"anchor", state.Anchor, "target", orig.Anchor)
			return state, nil
		}
	}
	return state, nil
}

// advance keeps the chunk loop moving backward. An anchor newer than the
// current one is pulled back to it; a next state identical to the current
// one steps the anchor back one unit, clamped to the global anchor unless
// the chunk already sits on it. The step always lands strictly before the
// current anchor, so the loop cannot stall.
func advance(cur, next ChunkState, orig CollectionRequest) ChunkState {
	if next.Anchor.After(cur.Anchor) {
		next.Anchor = cur.Anchor
	}
	if !next.Anchor.Equal(cur.Anchor) || next.MaxID != cur.MaxID {
		return next
	}
	jumped := FloorJump(cur.Anchor, orig.Granularity)
	if !jumped.After(orig.Anchor) && !cur.Anchor.Equal(orig.Anchor) {
		jumped = orig.Anchor
	}
	next.Anchor = jumped
	return next
}

// History runs a single walk from the request's own anchor and upper bound
// and returns the flattened, deduplicated history without persisting it.
func (c *Collector) History(ctx context.Context, req CollectionRequest) ([]stocktwits.Message, error) {
	orig, err := req.Normalize(c.now())
	if err != nil {
		return nil, err
	}
	if err := orig.Validate(); err != nil {
		return nil, err
	}
	res, err := c.walker().Walk(ctx, orig.initialState())
	if err != nil {
		return nil, err
	}
	return Dedupe(res.History.Flatten(), orig), nil
}

func (c *Collector) progress(verbose bool, msg string, args ...any) {
	if verbose {
		c.log.Info(msg, args...)
		return
	}
	c.log.Debug(msg, args...)
}
