package collector

import (
	"context"
	"fmt"
	"time"

	"twits-archive-tool/internal/stocktwits"
)

// Sink receives the deduplicated messages of one flush. name is the bare
// chunk filename; the sink decides the directory and on-disk layout.
type Sink interface {
	Append(ctx context.Context, name string, msgs []stocktwits.Message) error
}

// Recorder persists flush bookkeeping. A failing Recorder aborts Collect.
type Recorder interface {
	RecordFlush(ctx context.Context, rec FlushRecord) error
}

// Observer receives progress events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	PageFetched(kind stocktwits.EntityKind, messages int)
	FetchFailed(kind stocktwits.EntityKind)
	Flushed(rec FlushRecord)
	ChunkAdvanced(anchor time.Time)
}

type nopObserver struct{}

func (nopObserver) PageFetched(stocktwits.EntityKind, int) {}
func (nopObserver) FetchFailed(stocktwits.EntityKind)      {}
func (nopObserver) Flushed(FlushRecord)                    {}
func (nopObserver) ChunkAdvanced(time.Time)                {}

// FlushRecord describes one flush.
type FlushRecord struct {
	Seq      int
	Filename string
	// Chunk is the state the flushed history was walked from.
	Chunk ChunkState
	// Target is the date the filename was derived from.
	Target time.Time
	Next   ChunkState
	// Messages counts the raw history, Written the deduplicated output.
	Messages int
	Written  int
	LowID    int64
	HighID   int64
	Oldest   time.Time
	Newest   time.Time
}

// ChunkFilename is prefix + YYYYMMDD + suffix.
func ChunkFilename(prefix string, date time.Time, suffix string) string {
	return fmt.Sprintf("%s%s%s", prefix, date.UTC().Format("20060102"), suffix)
}

// Flush computes the next chunk state from history and hands the
// deduplicated history to the sink under a date-derived filename.
//
// The file is named after the current anchor, unless the next anchor falls
// in the same chunk as the history's oldest message, in which case the next
// anchor names it. The next state is computed from the raw history. A
// flush with nothing left after deduplication does not touch the sink.
func (c *Collector) Flush(ctx context.Context, history []stocktwits.Message, current ChunkState, orig CollectionRequest) (ChunkState, FlushRecord, error) {
	next, err := NextBoundaryState(history, current, orig)
	if err != nil {
		return current, FlushRecord{}, err
	}
	cur, _ := CursorOf(history)

	target := current.Anchor
	if SameChunk(next.Anchor, cur.Oldest, orig.Granularity) {
		target = next.Anchor
	}
	name := ChunkFilename(orig.FilenamePrefix, target, orig.FilenameSuffix)

	out := Dedupe(history, orig)
	rec := FlushRecord{
		Filename: name,
		Chunk:    current,
		Target:   target,
		Next:     next,
		Messages: len(history),
		Written:  len(out),
	}
	summarize(&rec, out)

	if len(out) == 0 {
		c.log.Debug("nothing left to write after filtering", "file", name, "messages", len(history))
		return next, rec, nil
	}
	if err := c.sink.Append(ctx, name, out); err != nil {
		return current, rec, fmt.Errorf("collector: write %s: %w", name, err)
	}
	return next, rec, nil
}

func summarize(rec *FlushRecord, msgs []stocktwits.Message) {
	for i, m := range msgs {
		if i == 0 {
			rec.LowID, rec.HighID = m.ID, m.ID
			rec.Oldest, rec.Newest = m.CreatedAt, m.CreatedAt
			continue
		}
		rec.LowID = min(rec.LowID, m.ID)
		rec.HighID = max(rec.HighID, m.ID)
		if m.CreatedAt.Before(rec.Oldest) {
			rec.Oldest = m.CreatedAt
		}
		if m.CreatedAt.After(rec.Newest) {
			rec.Newest = m.CreatedAt
		}
	}
}
