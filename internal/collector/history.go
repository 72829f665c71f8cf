package collector

import "twits-archive-tool/internal/stocktwits"

// History accumulates the pages of one walk. Pages are kept as separate
// blocks; Flatten lays them out with the page fetched last (the oldest one)
// first, each block keeping the order the Source returned.
//
// The last element of the flattened slice is the tail of the first page,
// not the globally oldest message. Chunk boundaries are derived from it.
type History struct {
	pages [][]stocktwits.Message
}

func (h *History) add(page []stocktwits.Message) {
	h.pages = append(h.pages, page)
}

// Pages is the number of non-empty pages collected.
func (h *History) Pages() int { return len(h.pages) }

// Len is the total number of messages, duplicates included.
func (h *History) Len() int {
	n := 0
	for _, p := range h.pages {
		n += len(p)
	}
	return n
}

// Flatten concatenates the pages, last fetched first.
func (h *History) Flatten() []stocktwits.Message {
	out := make([]stocktwits.Message, 0, h.Len())
	for i := len(h.pages) - 1; i >= 0; i-- {
		out = append(out, h.pages[i]...)
	}
	return out
}
