// Package chunkfile reads and writes chunk files: JSON arrays of messages,
// possibly several back to back, optionally compressed.
package chunkfile

import (
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names an output codec.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

var extToCompression = map[string]Compression{
	".gz":   Gzip,
	".gzip": Gzip,
	".zst":  Zstd,
	".lz4":  LZ4,
}

// compressedExts is every extension ReadFile can decompress.
var compressedExts = []string{".gz", ".gzip", ".zst", ".lz4"}

// ParseCompression accepts none, gzip, zstd or lz4. Empty means None.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "":
		return None, nil
	case None, Gzip, Zstd, LZ4:
		return c, nil
	default:
		return "", fmt.Errorf("chunkfile: unsupported compression type: %s", s)
	}
}

// Ext is the file extension appended for c.
func (c Compression) Ext() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// compressionOf reports the codec implied by the last extension of path.
func compressionOf(path string) Compression {
	if c, ok := extToCompression[filepath.Ext(path)]; ok {
		return c
	}
	return None
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newReader wraps r in the decompressor matching path's extension.
// Uncompressed files are passed through.
func newReader(r io.Reader, path string) (io.ReadCloser, error) {
	switch compressionOf(path) {
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		// zstd.Decoder is not an io.ReadCloser on its own.
		return zr.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// newWriter wraps w in the compressor for c. Close flushes the compressor
// but never closes w.
func newWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case LZ4:
		return lz4.NewWriter(w), nil
	case None, "":
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("chunkfile: unsupported compression type: %s", c)
	}
}
