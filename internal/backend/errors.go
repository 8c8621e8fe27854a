package backend

import (
	"errors"
	"fmt"
)

// ErrMissingField is returned when a well-formed response lacks the field
// the caller asked for (no "response", no "players", no "per_game_stats").
var ErrMissingField = errors.New("response missing expected field")

// StatusError is returned for any non-2xx response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsTransport reports whether err is a transport-level failure: the server
// was unreachable, answered with a non-2xx status, or sent a body that is
// not JSON. Semantic misses are not transport failures.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMissingField)
}
