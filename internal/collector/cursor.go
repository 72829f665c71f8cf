package collector

import (
	"time"

	"twits-archive-tool/internal/stocktwits"
)

// Cursor describes the edges of a batch: the created_at of its last element
// and the ids of its last and first elements.
type Cursor struct {
	Oldest time.Time
	LowID  int64
	HighID int64
}

// CursorOf computes the cursor of msgs. It relies on the batch order the
// Source returned and does not re-sort. ok is false for an empty batch.
func CursorOf(msgs []stocktwits.Message) (c Cursor, ok bool) {
	if len(msgs) == 0 {
		return Cursor{}, false
	}
	last := msgs[len(msgs)-1]
	return Cursor{
		Oldest: last.CreatedAt,
		LowID:  last.ID,
		HighID: msgs[0].ID,
	}, true
}
