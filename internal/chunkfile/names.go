package chunkfile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"twits-archive-tool/internal/collector"
)

const dateLayout = "20060102"

// Naming is the prefix/suffix pair around the YYYYMMDD date of a chunk file.
type Naming struct {
	Prefix string
	Suffix string
}

func (n Naming) withDefaults() Naming {
	if n.Prefix == "" {
		n.Prefix = collector.DefaultFilenamePrefix
	}
	if n.Suffix == "" {
		n.Suffix = collector.DefaultFilenameSuffix
	}
	return n
}

// Name is the uncompressed chunk filename for date.
func (n Naming) Name(date time.Time) string {
	n = n.withDefaults()
	return collector.ChunkFilename(n.Prefix, date, n.Suffix)
}

// Parse extracts the date from a chunk filename, with or without a
// compression extension. ok is false for files that are not chunk files.
func (n Naming) Parse(name string) (date time.Time, c Compression, ok bool) {
	n = n.withDefaults()
	base := filepath.Base(name)
	c = compressionOf(base)
	if c != None {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if !strings.HasPrefix(base, n.Prefix) || !strings.HasSuffix(base, n.Suffix) {
		return time.Time{}, None, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, n.Prefix), n.Suffix)
	if len(stamp) != len(dateLayout) {
		return time.Time{}, None, false
	}
	d, err := time.ParseInLocation(dateLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, None, false
	}
	return d, c, true
}

// chunkFile is a chunk file found on disk.
type chunkFile struct {
	path        string
	date        time.Time
	compression Compression
}

// scan lists the chunk files directly under dir, sorted by name.
func (n Naming) scan(dir string) ([]chunkFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []chunkFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d, c, ok := n.Parse(e.Name())
		if !ok {
			continue
		}
		out = append(out, chunkFile{path: filepath.Join(dir, e.Name()), date: d, compression: c})
	}
	return out, nil
}

// nextChunk is the start of the chunk after the one containing t.
func nextChunk(t time.Time, g collector.Granularity) time.Time {
	f := collector.Floor(t, g)
	switch g {
	case collector.Week:
		return f.AddDate(0, 0, 7)
	case collector.Month:
		return f.AddDate(0, 1, 0)
	default:
		return f.AddDate(0, 0, 1)
	}
}
