package matching

import (
	"net/http"
	"strings"
)

// lookupHeader returns the header's values joined with ", ". Header names
// are case-insensitive.
func lookupHeader(h http.Header, canonical string) (string, bool) {
	if v, ok := h[canonical]; ok {
		return strings.Join(v, ", "), true
	}
	for name, v := range h {
		if http.CanonicalHeaderKey(name) == canonical {
			return strings.Join(v, ", "), true
		}
	}
	return "", false
}

func containsHeader(list []string, canonical string) bool {
	for _, name := range list {
		if strings.EqualFold(name, canonical) {
			return true
		}
	}
	return false
}
