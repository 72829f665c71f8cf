package stocktwits

import (
	"fmt"
	"net/http"
)

// TransportError reports a failed stream call. Status is 0 when the request
// never produced a response (DNS, connection reset, timeout).
type TransportError struct {
	Kind   EntityKind
	Entity string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("stocktwits: %s %s: %v", e.Kind, e.Entity, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("stocktwits: %s %s: status %d %s: %s", e.Kind, e.Entity, e.Status, http.StatusText(e.Status), e.Body)
	}
	return fmt.Sprintf("stocktwits: %s %s: status %d %s", e.Kind, e.Entity, e.Status, http.StatusText(e.Status))
}

func (e *TransportError) Unwrap() error { return e.Err }
