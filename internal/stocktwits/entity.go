package stocktwits

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityKind names the stream family an entity id belongs to.
type EntityKind string

const (
	KindUser   EntityKind = "user"
	KindSymbol EntityKind = "symbol"
)

// entityPattern matches user names and symbols accepted in stream URLs.
// Allows letters, digits, underscore, dots (BTC.X) and hyphens (BF-B).
var entityPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,63}$`)

// ValidateEntity rejects ids that cannot be placed in a stream path.
func ValidateEntity(id string) error {
	if id == "" {
		return fmt.Errorf("entity id cannot be empty")
	}
	if !entityPattern.MatchString(id) {
		return fmt.Errorf("invalid entity id %q (1-64 letters, digits, '_', '.', '-')", id)
	}
	return nil
}

// SanitizeEntities trims and validates every id, returning them in the same
// order. All invalid ids are reported together.
func SanitizeEntities(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(ids))
	var invalid []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if err := ValidateEntity(id); err != nil {
			invalid = append(invalid, id)
			continue
		}
		out = append(out, id)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid entity ids: %v", invalid)
	}
	return out, nil
}
