package signals

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"twits-archive-tool/internal/stocktwits"
)

// Header is the CSV header for rows built with opts.
func Header(opts Options) []string {
	opts = opts.withDefaults()
	p := opts.Prefix
	h := []string{
		"id", "created_at", "username", "sentiment", "body",
		"date", "time", "hour",
		p + "_number", p + "_total_cum", p + "_day_cum", p + "_hour_cum",
	}
	for _, level := range []string{"day", "hour"} {
		lp := p + "_" + level
		h = append(h, lp+"_bull", lp+"_bear", lp+"_bb_ratio")
		for _, s := range opts.EMASpans {
			h = append(h, fmt.Sprintf("%s_bb_ratio_%d", lp, s))
		}
	}
	return h
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ratioCells(r Ratio) []string {
	cells := []string{strconv.Itoa(r.Bull), strconv.Itoa(r.Bear), formatFloat(r.Value)}
	for _, e := range r.EMA {
		cells = append(cells, formatFloat(e))
	}
	return cells
}

// WriteCSV writes rows with a header. opts must match the Build call.
func WriteCSV(w io.Writer, rows []Row, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(opts)); err != nil {
		return fmt.Errorf("signals: write header: %w", err)
	}
	for _, r := range rows {
		m := r.Message
		rec := []string{
			strconv.FormatInt(m.ID, 10), stocktwits.FormatTime(m.CreatedAt), m.User.Username, m.SentimentLabel(), m.Body,
			r.Date, r.Time, r.Hour,
			strconv.Itoa(r.Number), strconv.Itoa(r.TotalCum), strconv.Itoa(r.DayCum), strconv.Itoa(r.HourCum),
		}
		rec = append(rec, ratioCells(r.DayRatio)...)
		rec = append(rec, ratioCells(r.HourRatio)...)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("signals: write row %d: %w", m.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
