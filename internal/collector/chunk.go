package collector

import (
	"time"

	"twits-archive-tool/internal/stocktwits"
)

// Floor truncates t to the start of its chunk in UTC: midnight for Day, the
// Monday of the ISO week for Week, the first of the month for Month.
func Floor(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Week:
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// FloorJump is Floor moved one more unit into the past.
func FloorJump(t time.Time, g Granularity) time.Time {
	f := Floor(t, g)
	switch g {
	case Week:
		return f.AddDate(0, 0, -7)
	case Month:
		// f is the 1st, so AddDate cannot overflow into another month.
		return f.AddDate(0, -1, 0)
	default:
		return f.AddDate(0, 0, -1)
	}
}

// SameChunk reports whether a and b fall into the same chunk.
func SameChunk(a, b time.Time, g Granularity) bool {
	return Floor(a, g).Equal(Floor(b, g))
}

// NextBoundaryState derives the state of the next chunk from the flattened
// history of the current one. orig is the normalized request; its anchor is
// the global lower bound.
//
// The anchor becomes the floor of the history's oldest message (one unit
// further back if that lands exactly on the global anchor) and the upper id
// bound becomes the history's highest id. The anchor is clamped so it is
// never older than the global anchor, except when the current chunk already
// sits on it: then the unclamped anchor is returned with MaxID untouched,
// which ends the chunk loop.
func NextBoundaryState(history []stocktwits.Message, current ChunkState, orig CollectionRequest) (ChunkState, error) {
	c, ok := CursorOf(history)
	if !ok || c.Oldest.IsZero() {
		return current, ErrBoundaryAmbiguity
	}
	g := orig.Granularity

	oldest := Floor(c.Oldest, g)
	if oldest.Equal(orig.Anchor) {
		oldest = FloorJump(oldest, g)
	}

	next := current
	next.Anchor = oldest
	if !next.Anchor.After(orig.Anchor) {
		if current.Anchor.Equal(orig.Anchor) {
			return next, nil
		}
		next.Anchor = orig.Anchor
	}
	next.MaxID = c.HighID
	return next, nil
}
