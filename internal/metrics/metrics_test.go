package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/stocktwits"
)

var _ collector.Observer = (*Collection)(nil)

func TestCollection_Counts(t *testing.T) {
	m := New()

	m.PageFetched(stocktwits.KindUser, 30)
	m.PageFetched(stocktwits.KindUser, 12)
	m.PageFetched(stocktwits.KindSymbol, 5)
	m.FetchFailed(stocktwits.KindSymbol)
	m.Flushed(collector.FlushRecord{Written: 40})
	m.ChunkAdvanced(time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("symbol")))
	assert.Equal(t, 47.0, testutil.ToFloat64(m.MessagesFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("symbol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.MessagesWritten))
	assert.Equal(t, 1648771200.0, testutil.ToFloat64(m.ChunkAnchor))
}

func TestCollection_WriteTextfile(t *testing.T) {
	m := New()
	m.Flushed(collector.FlushRecord{Written: 3})

	path := filepath.Join(t.TempDir(), "collect.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "twits_archive_messages_written_total 3")
	assert.Contains(t, string(b), "# TYPE twits_archive_flushes_total counter")
}
