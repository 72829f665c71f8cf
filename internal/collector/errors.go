package collector

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEntities means the request names neither symbols nor users.
	// Collect treats it as a no-op; Validate surfaces it to callers.
	ErrNoEntities = errors.New("collector: request has neither symbols nor users")

	// ErrBoundaryAmbiguity means the chunk loop could not move its anchor
	// or upper id bound, or a cursor carried no usable timestamp.
	ErrBoundaryAmbiguity = errors.New("collector: chunk boundary cannot make progress")
)

// FetchError is a Source failure together with the chunk state that was
// being processed when it happened.
type FetchError struct {
	State ChunkState
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("collector: fetch at %s: %v", e.State, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
