package matching

import (
	"errors"
	"fmt"

	"github.com/getmockd/testproxy/pkg/recording"
)

// ErrNoMatch is returned when no recorded entry satisfies a request.
var ErrNoMatch = errors.New("no matching recorded entry")

// MismatchError reports a playback request that matched nothing. Closest is
// the best-scoring candidate, or nil when no candidate matched any field.
type MismatchError struct {
	Method  string
	URI     string
	Closest *NearMiss
}

func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("unable to find a record for the request %s %s", e.Method, e.URI)
	if e.Closest != nil {
		msg += fmt.Sprintf("; closest entry #%d (%s): %s", e.Closest.Index, e.Closest.Entry, e.Closest.Reason)
	}
	return msg
}

func (e *MismatchError) Unwrap() error {
	return ErrNoMatch
}

// FindMatch scans entries in recording order and returns the index of the
// first entry for which available reports true and m reports a match.
// A nil available accepts every entry.
func FindMatch(m Matcher, incoming *recording.Request, entries []*recording.Entry, available func(int) bool) (int, error) {
	var closest *NearMiss

	for i, entry := range entries {
		if available != nil && !available(i) {
			continue
		}

		result := m.Compare(incoming, &entry.Request)
		if result.Matched() {
			return i, nil
		}

		if result.Score == 0 {
			continue
		}
		if closest == nil || result.Score > closest.Score {
			closest = newNearMiss(i, entry.String(), result)
		}
	}

	return -1, &MismatchError{
		Method:  incoming.Method,
		URI:     incoming.URI,
		Closest: closest,
	}
}
