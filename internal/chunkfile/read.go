package chunkfile

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"twits-archive-tool/internal/stocktwits"
)

// Decode reads a stream of concatenated JSON arrays. A file flushed n times
// in append mode yields n arrays.
func Decode(r io.Reader) ([][]stocktwits.Message, error) {
	dec := json.NewDecoder(r)
	var arrays [][]stocktwits.Message
	for {
		var batch []stocktwits.Message
		err := dec.Decode(&batch)
		if errors.Is(err, io.EOF) {
			return arrays, nil
		}
		if err != nil {
			return arrays, fmt.Errorf("chunkfile: decode array %d: %w", len(arrays)+1, err)
		}
		arrays = append(arrays, batch)
	}
}

// ReadFile decodes every array in the chunk file at path, decompressing by
// extension.
func ReadFile(path string) ([][]stocktwits.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := newReader(f, path)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: open %s: %w", path, err)
	}
	defer r.Close()

	arrays, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arrays, nil
}

// Merge unions the batches by id, a later batch replacing an earlier copy of
// the same message, and returns them sorted by id, newest first.
func Merge(batches ...[]stocktwits.Message) []stocktwits.Message {
	byID := make(map[int64]stocktwits.Message)
	for _, b := range batches {
		for _, m := range b {
			byID[m.ID] = m
		}
	}
	out := make([]stocktwits.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b stocktwits.Message) int { return cmp.Compare(b.ID, a.ID) })
	return out
}
