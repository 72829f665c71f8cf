package collector

import "twits-archive-tool/internal/stocktwits"

// Dedupe collapses msgs by id, keeping the first occurrence in input order.
// With OnlyCombo and both entity lists present, it also keeps only messages
// that tag a target symbol and are authored by a target user. OnlyCombo with
// a missing list is a no-op.
func Dedupe(msgs []stocktwits.Message, req CollectionRequest) []stocktwits.Message {
	combo := req.OnlyCombo && len(req.Symbols) > 0 && len(req.Users) > 0
	var symbols, users map[string]struct{}
	if combo {
		symbols = toSet(req.Symbols)
		users = toSet(req.Users)
	}

	seen := make(map[int64]struct{}, len(msgs))
	out := make([]stocktwits.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if combo {
			if _, ok := users[m.User.Username]; !ok || !m.HasSymbol(symbols) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
