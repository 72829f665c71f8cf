package chunkfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"twits-archive-tool/internal/stocktwits"
)

// ensureDirectoryExists creates a directory if it doesn't exist.
func ensureDirectoryExists(path string) error {
	return os.MkdirAll(path, 0o755)
}

func encodeArray(msgs []stocktwits.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []stocktwits.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// AppendSink writes each flush as one more JSON array at the end of the
// chunk file. Re-reading a file flushed several times needs ReadFile.
type AppendSink struct {
	dir string
	log *slog.Logger
}

// NewAppendSink returns a sink writing under dir, creating it if needed.
func NewAppendSink(dir string, log *slog.Logger) (*AppendSink, error) {
	if err := ensureDirectoryExists(dir); err != nil {
		return nil, fmt.Errorf("chunkfile: mkdir %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &AppendSink{dir: dir, log: log}, nil
}

func (s *AppendSink) Append(ctx context.Context, name string, msgs []stocktwits.Message) error {
	b, err := encodeArray(msgs)
	if err != nil {
		return fmt.Errorf("chunkfile: encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("chunkfile: open %s: %w", path, err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("chunkfile: append %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("chunkfile: close %s: %w", path, err)
	}
	s.log.Debug("chunk appended", "path", path, "messages", len(msgs))
	return nil
}

// MergeSink keeps every chunk file a single JSON array. A flush into an
// existing file is merged with what is already there (see Merge) and the
// result replaces the file atomically.
type MergeSink struct {
	dir string
	log *slog.Logger
}

// NewMergeSink returns a merging sink under dir, creating it if needed.
func NewMergeSink(dir string, log *slog.Logger) (*MergeSink, error) {
	if err := ensureDirectoryExists(dir); err != nil {
		return nil, fmt.Errorf("chunkfile: mkdir %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &MergeSink{dir: dir, log: log}, nil
}

func (s *MergeSink) Append(ctx context.Context, name string, msgs []stocktwits.Message) error {
	path := filepath.Join(s.dir, name)
	existing, err := ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	merged := Merge(append(existing, msgs)...)
	b, err := encodeArray(merged)
	if err != nil {
		return fmt.Errorf("chunkfile: encode %s: %w", name, err)
	}
	if err := writeAtomic(path, b); err != nil {
		return err
	}
	s.log.Debug("chunk merged", "path", path, "arrays", len(existing), "added", len(msgs), "messages", len(merged))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("chunkfile: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chunkfile: rename: %w", err)
	}
	return nil
}

// writeCompressed encodes msgs as one indented JSON array through the codec
// for c and replaces path atomically.
func writeCompressed(path string, msgs []stocktwits.Message, c Compression) error {
	var buf bytes.Buffer
	w, err := newWriter(&buf, c)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if msgs == nil {
		msgs = []stocktwits.Message{}
	}
	if err := enc.Encode(msgs); err != nil {
		return fmt.Errorf("chunkfile: encode %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("chunkfile: close compressor for %s: %w", path, err)
	}
	return writeAtomic(path, buf.Bytes())
}
