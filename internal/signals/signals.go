// Package signals turns collected messages into sentiment features: a
// numeric sentiment, running totals and bull/bear ratios with their EMAs per
// day and per hour.
package signals

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"twits-archive-tool/internal/stocktwits"
)

const (
	Bullish = "Bullish"
	Bearish = "Bearish"
)

var (
	DefaultPrefix   = "signal"
	DefaultEMASpans = []int{5, 6, 7, 8, 9, 10, 15, 20}
)

// ErrMissingSentiment means the dataset lacks Bullish or Bearish messages,
// so no ratio can be formed.
var ErrMissingSentiment = errors.New("signals: sentiment not found")

// Options configures Build.
type Options struct {
	Prefix   string
	EMASpans []int
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.EMASpans == nil {
		o.EMASpans = DefaultEMASpans
	}
	return o
}

// Ratio is the bull/bear statistics of one day or hour bucket.
type Ratio struct {
	Bull int
	Bear int
	// Value is Bull/Bear, NaN when the bucket has no Bearish message.
	Value float64
	// EMA holds one value per configured span, in span order.
	EMA []float64
}

// Row is one message with its features.
type Row struct {
	Message   stocktwits.Message
	Date      string // 2006-01-02
	Time      string // 15:04:05Z
	Hour      string // 2006-01-02T15:59:59Z
	Number    int
	TotalCum  int
	DayCum    int
	HourCum   int
	DayRatio  Ratio
	HourRatio Ratio
}

// Number maps a sentiment label to 1 (Bullish), -1 (Bearish) or 0.
func Number(label string) int {
	switch label {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}

// alpha is the smoothing factor for an EMA over span periods.
func alpha(span int) float64 { return 2 / (float64(span) + 1) }

// Build computes the features of msgs. Messages are deduplicated by id and
// ordered by created_at then id, oldest first; running totals follow that
// order. EMAs run over the bucket series in time order, seeded with the
// first defined ratio; undefined ratios carry the previous EMA forward.
func Build(msgs []stocktwits.Message, opts Options) ([]Row, error) {
	opts = opts.withDefaults()
	for _, s := range opts.EMASpans {
		if s <= 0 {
			return nil, fmt.Errorf("signals: EMA span must be positive, got %d", s)
		}
	}

	seen := make(map[int64]struct{}, len(msgs))
	uniq := make([]stocktwits.Message, 0, len(msgs))
	var bulls, bears int
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		uniq = append(uniq, m)
		switch m.SentimentLabel() {
		case Bullish:
			bulls++
		case Bearish:
			bears++
		}
	}
	if bears == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSentiment, Bearish)
	}
	if bulls == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSentiment, Bullish)
	}
	slices.SortFunc(uniq, func(a, b stocktwits.Message) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	rows := make([]Row, len(uniq))
	dayCum := map[string]int{}
	hourCum := map[string]int{}
	total := 0
	for i, m := range uniq {
		t := m.CreatedAt.UTC()
		r := Row{
			Message: m,
			Date:    t.Format(time.DateOnly),
			Time:    t.Format("15:04:05Z"),
			Hour:    t.Format("2006-01-02T15:59:59Z"),
			Number:  Number(m.SentimentLabel()),
		}
		total += r.Number
		dayCum[r.Date] += r.Number
		hourCum[r.Hour] += r.Number
		r.TotalCum, r.DayCum, r.HourCum = total, dayCum[r.Date], hourCum[r.Hour]
		rows[i] = r
	}

	days := ratios(rows, func(r Row) string { return r.Date }, opts.EMASpans)
	hours := ratios(rows, func(r Row) string { return r.Hour }, opts.EMASpans)
	for i := range rows {
		rows[i].DayRatio = days[rows[i].Date]
		rows[i].HourRatio = hours[rows[i].Hour]
	}
	return rows, nil
}

// ratios counts bull/bear per bucket and runs the EMAs over the buckets in
// key order. rows must already be sorted by time, which makes first-seen
// order equal to key order.
func ratios(rows []Row, key func(Row) string, spans []int) map[string]Ratio {
	var order []string
	out := map[string]Ratio{}
	for _, r := range rows {
		k := key(r)
		b, ok := out[k]
		if !ok {
			order = append(order, k)
		}
		switch r.Message.SentimentLabel() {
		case Bullish:
			b.Bull++
		case Bearish:
			b.Bear++
		}
		out[k] = b
	}

	prev := make([]float64, len(spans))
	for i := range prev {
		prev[i] = math.NaN()
	}
	for _, k := range order {
		b := out[k]
		b.Value = math.NaN()
		if b.Bull > 0 && b.Bear > 0 {
			b.Value = float64(b.Bull) / float64(b.Bear)
		}
		b.EMA = make([]float64, len(spans))
		for i, s := range spans {
			switch {
			case math.IsNaN(b.Value):
				b.EMA[i] = prev[i]
			case math.IsNaN(prev[i]):
				b.EMA[i] = b.Value
			default:
				a := alpha(s)
				b.EMA[i] = a*b.Value + (1-a)*prev[i]
			}
			prev[i] = b.EMA[i]
		}
		out[k] = b
	}
	return out
}
