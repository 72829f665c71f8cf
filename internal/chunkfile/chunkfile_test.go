package chunkfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/stocktwits"
)

func msg(t *testing.T, id int64, created string) stocktwits.Message {
	t.Helper()
	ts, err := stocktwits.ParseTime(created)
	require.NoError(t, err)
	return stocktwits.Message{ID: id, CreatedAt: ts, User: stocktwits.User{Username: "U"}}
}

func ids(msgs []stocktwits.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	require.NoError(t, err)
	return d
}

func TestAppendSink_ConcatenatesArrays(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewAppendSink(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, "history.20220402.json", []stocktwits.Message{msg(t, 8, "2022-04-03T06:00:00Z"), msg(t, 7, "2022-04-02T20:00:00Z")}))
	require.NoError(t, sink.Append(ctx, "history.20220402.json", []stocktwits.Message{msg(t, 6, "2022-04-02T10:00:00Z")}))

	raw, err := os.ReadFile(filepath.Join(dir, "history.20220402.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "]"), "one array per flush")

	arrays, err := ReadFile(filepath.Join(dir, "history.20220402.json"))
	require.NoError(t, err)
	require.Len(t, arrays, 2)
	assert.Equal(t, []int64{8, 7}, ids(arrays[0]))
	assert.Equal(t, []int64{6}, ids(arrays[1]))
}

func TestAppendSink_EmptyFlushWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewAppendSink(dir, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Append(context.Background(), "history.20220401.json", nil))
	arrays, err := ReadFile(filepath.Join(dir, "history.20220401.json"))
	require.NoError(t, err)
	require.Len(t, arrays, 1)
	assert.Empty(t, arrays[0])
}

func TestMergeSink_UnionsByID(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewMergeSink(filepath.Join(dir, "out"), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, "history.20220402.json", []stocktwits.Message{msg(t, 8, "2022-04-03T06:00:00Z"), msg(t, 7, "2022-04-02T20:00:00Z"), msg(t, 6, "2022-04-02T10:00:00Z")}))
	require.NoError(t, sink.Append(ctx, "history.20220402.json", []stocktwits.Message{msg(t, 6, "2022-04-02T10:00:00Z"), msg(t, 5, "2022-04-02T02:00:00Z"), msg(t, 9, "2022-04-03T12:00:00Z")}))

	path := filepath.Join(dir, "out", "history.20220402.json")
	arrays, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, arrays, 1)
	assert.Equal(t, []int64{9, 8, 7, 6, 5}, ids(arrays[0]))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive")
}

func TestMergeSink_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.20220402.json"), []byte(`[{"id":1,`), 0o644))
	sink, err := NewMergeSink(dir, nil)
	require.NoError(t, err)

	err = sink.Append(context.Background(), "history.20220402.json", []stocktwits.Message{msg(t, 2, "2022-04-02T10:00:00Z")})
	assert.Error(t, err)
}

func TestReadFile_Compressed(t *testing.T) {
	dir := t.TempDir()
	msgs := []stocktwits.Message{msg(t, 2, "2022-04-02T10:00:00Z"), msg(t, 1, "2022-04-01T10:00:00Z")}

	for _, c := range []Compression{None, Gzip, Zstd, LZ4} {
		t.Run(string(c), func(t *testing.T) {
			path := filepath.Join(dir, "history.20220401.json"+c.Ext())
			require.NoError(t, writeCompressed(path, msgs, c))

			arrays, err := ReadFile(path)
			require.NoError(t, err)
			require.Len(t, arrays, 1)
			assert.Equal(t, []int64{2, 1}, ids(arrays[0]))
		})
	}
}

func TestMerge(t *testing.T) {
	older := msg(t, 5, "2022-04-02T02:00:00Z")
	newer := older
	newer.Body = "edited"

	out := Merge([]stocktwits.Message{older, msg(t, 4, "2022-04-01T15:00:00Z")}, []stocktwits.Message{msg(t, 6, "2022-04-02T10:00:00Z"), newer})
	assert.Equal(t, []int64{6, 5, 4}, ids(out))
	assert.Equal(t, "edited", out[1].Body)
}

func TestNaming_Parse(t *testing.T) {
	n := Naming{}
	d, c, ok := n.Parse("history.20220225.json")
	require.True(t, ok)
	assert.Equal(t, None, c)
	assert.True(t, d.Equal(day(t, "2022-02-25")))

	_, c, ok = n.Parse("/data/history.20220225.json.zst")
	require.True(t, ok)
	assert.Equal(t, Zstd, c)

	for _, bad := range []string{"history.2022022.json", "history.20221345.json", "other.20220225.json", "history.20220225.txt"} {
		_, _, ok := n.Parse(bad)
		assert.False(t, ok, bad)
	}

	custom := Naming{Prefix: "TSLA-", Suffix: ".ndjson"}
	assert.Equal(t, "TSLA-20220225.ndjson", custom.Name(day(t, "2022-02-25")))
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, None, c)
	c, err = ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)
	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}

func writeDays(t *testing.T, dir string) {
	t.Helper()
	sink, err := NewAppendSink(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()
	// 2022-03-28 is a Monday; 04-04 starts the next week.
	require.NoError(t, sink.Append(ctx, "history.20220331.json", []stocktwits.Message{msg(t, 3, "2022-03-31T22:00:00Z"), msg(t, 2, "2022-03-31T10:00:00Z")}))
	require.NoError(t, sink.Append(ctx, "history.20220331.json", []stocktwits.Message{msg(t, 2, "2022-03-31T10:00:00Z")}))
	require.NoError(t, sink.Append(ctx, "history.20220401.json", []stocktwits.Message{msg(t, 5, "2022-04-01T15:00:00Z"), msg(t, 4, "2022-04-01T05:00:00Z"), msg(t, 3, "2022-03-31T22:00:00Z")}))
	require.NoError(t, sink.Append(ctx, "history.20220404.json", []stocktwits.Message{msg(t, 9, "2022-04-04T01:00:00Z")}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
}

func TestCompact_WeekGroups(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeDays(t, in)

	results, err := Compact(context.Background(), CompactOptions{
		InputDir:    in,
		OutputDir:   out,
		Group:       collector.Week,
		Compression: Gzip,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, filepath.Join(out, "history.20220328.json.gz"), first.Output)
	assert.Len(t, first.Inputs, 2)
	assert.Equal(t, 3, first.Arrays)
	assert.Equal(t, 6, first.Messages)
	assert.Equal(t, 4, first.Written)

	arrays, err := ReadFile(first.Output)
	require.NoError(t, err)
	require.Len(t, arrays, 1)
	assert.Equal(t, []int64{5, 4, 3, 2}, ids(arrays[0]))

	assert.Equal(t, filepath.Join(out, "history.20220404.json.gz"), results[1].Output)
	assert.Equal(t, 1, results[1].Written)
}

func TestCompact_SkipsUnreadable(t *testing.T) {
	in := t.TempDir()
	writeDays(t, in)
	require.NoError(t, os.WriteFile(filepath.Join(in, "history.20220402.json"), []byte("not json"), 0o644))

	results, err := Compact(context.Background(), CompactOptions{InputDir: in, OutputDir: t.TempDir(), Group: collector.Month})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{filepath.Join(in, "history.20220402.json")}, results[1].Skipped)
}

func TestCompact_RejectsBadOptions(t *testing.T) {
	_, err := Compact(context.Background(), CompactOptions{InputDir: t.TempDir(), Compression: "rar"})
	assert.Error(t, err)
	_, err = Compact(context.Background(), CompactOptions{InputDir: t.TempDir(), Group: "year"})
	assert.Error(t, err)
}

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir)

	rep, err := BuildReport(ReportOptions{
		Dir:         dir,
		Granularity: collector.Day,
		From:        day(t, "2022-03-30"),
		To:          day(t, "2022-04-02"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Expected)
	assert.Equal(t, []string{
		filepath.ToSlash(filepath.Join(dir, "history.20220330.json")),
		filepath.ToSlash(filepath.Join(dir, "history.20220402.json")),
	}, rep.Missing)

	require.Len(t, rep.Files, 2)
	mar31 := rep.Files[0]
	assert.Equal(t, 2, mar31.Arrays)
	assert.Equal(t, 3, mar31.Messages)
	assert.Equal(t, 2, mar31.Unique)
	assert.Equal(t, 1, mar31.Duplicates)
	assert.Equal(t, int64(2), mar31.LowID)
	assert.Equal(t, int64(3), mar31.HighID)

	apr1 := rep.Files[1]
	assert.Equal(t, 1, apr1.OutsideChunk)
	assert.NoError(t, apr1.Err)
}

func TestBuildReport_FindsCompressed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeCompressed(filepath.Join(dir, "history.20220301.json.lz4"), []stocktwits.Message{msg(t, 1, "2022-03-05T00:00:00Z")}, LZ4))

	rep, err := BuildReport(ReportOptions{Dir: dir, Granularity: collector.Month, From: day(t, "2022-03-15"), To: day(t, "2022-04-15")})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Expected)
	require.Len(t, rep.Files, 1)
	assert.Equal(t, 1, rep.Files[0].Messages)
	assert.Len(t, rep.Missing, 1)

	_, err = BuildReport(ReportOptions{Dir: dir, From: day(t, "2022-04-15"), To: day(t, "2022-03-15")})
	assert.Error(t, err)
}
