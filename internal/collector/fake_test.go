package collector

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"twits-archive-tool/internal/stocktwits"
)

// fakeSource serves fixed streams per entity, newest first, honouring the
// inclusive max bound, the exclusive since bound and the page limit.
type fakeSource struct {
	mu      sync.Mutex
	users   map[string][]stocktwits.Message
	symbols map[string][]stocktwits.Message
	calls   []stocktwits.Query
	fail    error
}

func (f *fakeSource) FetchByUser(ctx context.Context, user string, q stocktwits.Query) ([]stocktwits.Message, error) {
	return f.serve(f.users[user], q)
}

func (f *fakeSource) FetchBySymbol(ctx context.Context, symbol string, q stocktwits.Query) ([]stocktwits.Message, error) {
	return f.serve(f.symbols[symbol], q)
}

func (f *fakeSource) serve(stream []stocktwits.Message, q stocktwits.Query) ([]stocktwits.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	var out []stocktwits.Message
	for _, m := range stream {
		if q.MaxID != 0 && m.ID > q.MaxID {
			continue
		}
		if m.ID <= q.SinceID {
			continue
		}
		out = append(out, m)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

type flushCall struct {
	name string
	ids  []int64
}

type memorySink struct {
	flushes []flushCall
	err     error
}

func (s *memorySink) Append(ctx context.Context, name string, msgs []stocktwits.Message) error {
	if s.err != nil {
		return s.err
	}
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	s.flushes = append(s.flushes, flushCall{name: name, ids: ids})
	return nil
}

type memoryRecorder struct {
	recs []FlushRecord
}

func (r *memoryRecorder) RecordFlush(ctx context.Context, rec FlushRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := stocktwits.ParseTime(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func msg(t *testing.T, id int64, created, user string, symbols ...string) stocktwits.Message {
	t.Helper()
	m := stocktwits.Message{ID: id, CreatedAt: ts(t, created), User: stocktwits.User{Username: user}}
	for _, s := range symbols {
		m.Symbols = append(m.Symbols, stocktwits.Symbol{Symbol: s})
	}
	return m
}

func ids(msgs []stocktwits.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// dayFixture is ten messages from user U across 2022-03-31..2022-04-03,
// newest first.
func dayFixture(t *testing.T) []stocktwits.Message {
	t.Helper()
	stream := []stocktwits.Message{
		msg(t, 10, "2022-04-03T18:00:00Z", "U"),
		msg(t, 9, "2022-04-03T12:00:00Z", "U"),
		msg(t, 8, "2022-04-03T06:00:00Z", "U"),
		msg(t, 7, "2022-04-02T20:00:00Z", "U"),
		msg(t, 6, "2022-04-02T10:00:00Z", "U"),
		msg(t, 5, "2022-04-02T02:00:00Z", "U"),
		msg(t, 4, "2022-04-01T15:00:00Z", "U"),
		msg(t, 3, "2022-04-01T05:00:00Z", "U"),
		msg(t, 2, "2022-03-31T22:00:00Z", "U"),
		msg(t, 1, "2022-03-31T10:00:00Z", "U"),
	}
	if !slices.IsSortedFunc(stream, func(a, b stocktwits.Message) int { return int(b.ID - a.ID) }) {
		t.Fatal("fixture must be newest first")
	}
	return stream
}

// comboFixture returns the streams of user U and symbol S. Only ids 12, 9
// and 5 are posted by U and tag S; 12, 9 and 5 appear in both streams.
func comboFixture(t *testing.T) (users, symbols map[string][]stocktwits.Message) {
	t.Helper()
	users = map[string][]stocktwits.Message{"U": {
		msg(t, 12, "2022-04-03T12:00:00Z", "U", "S"),
		msg(t, 11, "2022-04-03T08:00:00Z", "U", "X"),
		msg(t, 9, "2022-04-02T12:00:00Z", "U", "S", "X"),
		msg(t, 7, "2022-04-02T08:00:00Z", "U", "X"),
		msg(t, 5, "2022-04-01T12:00:00Z", "U", "S"),
		msg(t, 3, "2022-03-31T12:00:00Z", "U", "X"),
	}}
	symbols = map[string][]stocktwits.Message{"S": {
		msg(t, 12, "2022-04-03T12:00:00Z", "U", "S"),
		msg(t, 10, "2022-04-02T16:00:00Z", "V", "S"),
		msg(t, 9, "2022-04-02T12:00:00Z", "U", "S", "X"),
		msg(t, 8, "2022-04-02T10:00:00Z", "V", "S"),
		msg(t, 5, "2022-04-01T12:00:00Z", "U", "S"),
		msg(t, 4, "2022-03-31T16:00:00Z", "V", "S"),
	}}
	return users, symbols
}

func comboRequest(t *testing.T) CollectionRequest {
	return CollectionRequest{
		Users:       []string{"U"},
		Symbols:     []string{"S"},
		OnlyCombo:   true,
		Limit:       10,
		Anchor:      ts(t, "2022-04-01T00:00:00Z"),
		Granularity: Day,
	}
}
