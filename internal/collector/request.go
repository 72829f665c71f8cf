package collector

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Granularity is the width of one chunk file.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity accepts day, week or month (case-insensitive). Empty
// means Day.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Day, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("collector: unknown chunk granularity %q (day, week, month)", s)
	}
}

const (
	DefaultLimit          = 100
	DefaultFilenamePrefix = "history."
	DefaultFilenameSuffix = ".json"
)

// CollectionRequest is what the caller asks for. Zero values mean "use the
// default"; Normalize fills them in once at entry.
type CollectionRequest struct {
	Symbols   []string
	Users     []string
	OnlyCombo bool

	SinceID int64
	MaxID   int64
	Limit   int

	// Anchor is how far back to walk. Zero means the floor of now at
	// Granularity.
	Anchor      time.Time
	Granularity Granularity

	FilenamePrefix string
	FilenameSuffix string

	Verbose bool
}

// Normalize returns a fully populated copy of r. The entity slices are
// cloned so later caller mutations do not leak into a running collection.
func (r CollectionRequest) Normalize(now time.Time) (CollectionRequest, error) {
	out := r
	out.Symbols = slices.Clone(r.Symbols)
	out.Users = slices.Clone(r.Users)

	g, err := ParseGranularity(string(r.Granularity))
	if err != nil {
		return CollectionRequest{}, err
	}
	out.Granularity = g

	switch {
	case r.Limit < 0:
		return CollectionRequest{}, fmt.Errorf("collector: limit must not be negative, got %d", r.Limit)
	case r.Limit == 0:
		out.Limit = DefaultLimit
	}
	if r.SinceID < 0 || r.MaxID < 0 {
		return CollectionRequest{}, fmt.Errorf("collector: since/max ids must not be negative")
	}

	if r.Anchor.IsZero() {
		out.Anchor = Floor(now, g)
	} else {
		out.Anchor = r.Anchor.UTC()
	}

	if out.FilenamePrefix == "" {
		out.FilenamePrefix = DefaultFilenamePrefix
	}
	if out.FilenameSuffix == "" {
		out.FilenameSuffix = DefaultFilenameSuffix
	}
	return out, nil
}

// Validate reports ErrNoEntities when neither symbols nor users are set.
func (r CollectionRequest) Validate() error {
	if len(r.Symbols) == 0 && len(r.Users) == 0 {
		return ErrNoEntities
	}
	return nil
}

// initialState is the state the first page is fetched with.
func (r CollectionRequest) initialState() ChunkState {
	return ChunkState{Request: r, Anchor: r.Anchor, MaxID: r.MaxID}
}

// ChunkState is the per-chunk working state: the immutable request plus the
// anchor and upper id bound the walk is currently using.
type ChunkState struct {
	Request CollectionRequest
	Anchor  time.Time
	MaxID   int64
}

func (s ChunkState) String() string {
	return fmt.Sprintf("anchor=%s max=%d", s.Anchor.UTC().Format(time.RFC3339), s.MaxID)
}
