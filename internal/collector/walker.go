package collector

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"twits-archive-tool/internal/stocktwits"
)

// Source is the page provider. Implementations return at most q.Limit
// messages with SinceID < id <= MaxID (MaxID 0 is unbounded), newest first.
type Source interface {
	FetchByUser(ctx context.Context, user string, q stocktwits.Query) ([]stocktwits.Message, error)
	FetchBySymbol(ctx context.Context, symbol string, q stocktwits.Query) ([]stocktwits.Message, error)
}

// Walker pages backward through every requested entity from a ChunkState.
type Walker struct {
	src         Source
	concurrency int
	log         *slog.Logger
	obs         Observer
}

// NewWalker returns a Walker. concurrency <= 1 fetches entities one by one.
func NewWalker(src Source, concurrency int, log *slog.Logger, obs Observer) *Walker {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Walker{src: src, concurrency: concurrency, log: log, obs: obs}
}

type entity struct {
	kind stocktwits.EntityKind
	id   string
}

// entities lists users first, then symbols.
func entities(req CollectionRequest) []entity {
	out := make([]entity, 0, len(req.Users)+len(req.Symbols))
	for _, u := range req.Users {
		out = append(out, entity{stocktwits.KindUser, u})
	}
	for _, s := range req.Symbols {
		out = append(out, entity{stocktwits.KindSymbol, s})
	}
	return out
}

// FetchPage fetches one page for every entity in s.Request, bounded by
// s.MaxID, and returns the concatenation deduplicated by id and, with
// OnlyCombo, filtered to the requested user and symbol pairs. The result is
// in entity order regardless of concurrency.
func (w *Walker) FetchPage(ctx context.Context, s ChunkState) ([]stocktwits.Message, error) {
	ents := entities(s.Request)
	q := stocktwits.Query{SinceID: s.Request.SinceID, MaxID: s.MaxID, Limit: s.Request.Limit}
	results := make([][]stocktwits.Message, len(ents))

	if w.concurrency <= 1 {
		for i, e := range ents {
			msgs, err := w.fetchOne(ctx, e, q)
			if err != nil {
				return nil, &FetchError{State: s, Err: err}
			}
			results[i] = msgs
		}
	} else {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(w.concurrency)
		for i, e := range ents {
			g.Go(func() error {
				msgs, err := w.fetchOne(gCtx, e, q)
				if err != nil {
					return err
				}
				results[i] = msgs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, &FetchError{State: s, Err: err}
		}
	}

	var all []stocktwits.Message
	for _, r := range results {
		all = append(all, r...)
	}
	return Dedupe(all, s.Request), nil
}

func (w *Walker) fetchOne(ctx context.Context, e entity, q stocktwits.Query) ([]stocktwits.Message, error) {
	var (
		msgs []stocktwits.Message
		err  error
	)
	if e.kind == stocktwits.KindUser {
		msgs, err = w.src.FetchByUser(ctx, e.id, q)
	} else {
		msgs, err = w.src.FetchBySymbol(ctx, e.id, q)
	}
	if err != nil {
		w.obs.FetchFailed(e.kind)
		return nil, err
	}
	w.obs.PageFetched(e.kind, len(msgs))
	return msgs, nil
}

// WalkResult is the outcome of one Walk.
type WalkResult struct {
	History History
	// Cursor is the cursor of the last non-empty page. Valid only when
	// History is non-empty.
	Cursor Cursor
	// Exhausted is set when the walk stopped because the Source returned
	// nothing older, rather than because the anchor was reached. A page that
	// is empty after the OnlyCombo filter counts as exhausted: without a
	// cursor there is no bound to continue from.
	Exhausted bool
}

// Walk pages backward from s until the oldest message of the latest page is
// at or before s.Anchor, or the Source runs dry. Every advance sets the upper
// bound to the lowest id of the previous page; the bound is inclusive, so
// boundary messages repeat across pages and are removed by Dedupe later.
//
// A zero anchor makes Walk return after the first page.
func (w *Walker) Walk(ctx context.Context, s ChunkState) (WalkResult, error) {
	var res WalkResult
	st := s
	for {
		page, err := w.FetchPage(ctx, st)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			res.Exhausted = true
			return res, nil
		}
		res.History.add(page)
		c, _ := CursorOf(page)
		res.Cursor = c

		w.progress(s.Request.Verbose, "page collected",
			"anchor", st.Anchor, "max", st.MaxID, "messages", len(page),
			"oldest", c.Oldest, "low", c.LowID)

		if st.Anchor.IsZero() || !st.Anchor.Before(c.Oldest) {
			return res, nil
		}
		if st.MaxID != 0 && c.LowID >= st.MaxID {
			res.Exhausted = true
			return res, nil
		}
		// One bound for every entity. A stream whose own low id is above it
		// skips the ids in between.
		st.MaxID = c.LowID
	}
}

func (w *Walker) progress(verbose bool, msg string, args ...any) {
	if verbose {
		w.log.Info(msg, args...)
		return
	}
	w.log.Debug(msg, args...)
}
