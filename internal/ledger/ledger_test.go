package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twits-archive-tool/internal/collector"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	clock := time.Date(2022, 4, 4, 9, 0, 0, 0, time.UTC)
	l, err := Open(":memory:", WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func day(d int) time.Time { return time.Date(2022, 4, d, 0, 0, 0, 0, time.UTC) }

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	req := collector.CollectionRequest{Users: []string{"U"}, Anchor: day(1), Granularity: collector.Day}

	run, err := l.StartRun(ctx, req)
	require.NoError(t, err)
	assert.Len(t, run.ID, 26)

	require.NoError(t, run.RecordFlush(ctx, collector.FlushRecord{
		Seq: 1, Filename: "history.20220403.json",
		Chunk:    collector.ChunkState{Anchor: day(3)},
		Next:     collector.ChunkState{Anchor: day(3), MaxID: 8},
		Messages: 6, Written: 5, LowID: 6, HighID: 10,
		Oldest: day(2).Add(10 * time.Hour), Newest: day(3).Add(18 * time.Hour),
	}))
	require.NoError(t, run.RecordFlush(ctx, collector.FlushRecord{
		Seq: 2, Filename: "history.20220402.json",
		Chunk:    collector.ChunkState{Anchor: day(3), MaxID: 8},
		Next:     collector.ChunkState{Anchor: day(2), MaxID: 8},
		Messages: 3, Written: 3, LowID: 6, HighID: 8,
	}))
	require.NoError(t, run.Finish(ctx, collector.ChunkState{Anchor: day(2), MaxID: 8}, nil))

	info, err := l.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, 2, info.Flushes)
	assert.Equal(t, 8, info.Written)
	assert.True(t, info.FinalAnchor.Equal(day(2)))
	assert.Equal(t, int64(8), info.FinalMaxID)
	assert.True(t, info.FinishedAt.After(info.StartedAt))
	assert.Contains(t, info.RequestJSON, `"Users":["U"]`)

	flushes, err := l.Flushes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, flushes, 2)
	assert.Equal(t, "history.20220403.json", flushes[0].Filename)
	assert.True(t, flushes[0].Oldest.Equal(day(2).Add(10*time.Hour)))
	assert.True(t, flushes[1].Oldest.IsZero())
	assert.Equal(t, int64(8), flushes[1].NextMaxID)

	hw, err := l.HighWater(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), hw)
}

func TestFailedRunIsExcludedFromHighWater(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	run, err := l.StartRun(ctx, collector.CollectionRequest{Symbols: []string{"TSLA"}})
	require.NoError(t, err)
	require.NoError(t, run.RecordFlush(ctx, collector.FlushRecord{
		Seq: 1, Filename: "f", HighID: 99,
		Chunk: collector.ChunkState{Anchor: day(3)},
		Next:  collector.ChunkState{Anchor: day(2)},
	}))
	require.NoError(t, run.Finish(ctx, collector.ChunkState{}, errors.New("stocktwits: user U: status 500")))

	info, err := l.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "status 500")

	hw, err := l.HighWater(ctx)
	require.NoError(t, err)
	assert.Zero(t, hw)
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	var ids []string
	for range 3 {
		run, err := l.StartRun(ctx, collector.CollectionRequest{Users: []string{"U"}})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := l.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Zero(t, runs[0].Flushes)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	_, err := l.Run(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	r := &Run{ID: "nope", l: l}
	assert.ErrorIs(t, r.Finish(ctx, collector.ChunkState{}, nil), ErrNotFound)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.StartRun(context.Background(), collector.CollectionRequest{Users: []string{"U"}})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
