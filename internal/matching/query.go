package matching

import (
	"net/url"
	"strings"
)

// removeParams drops the named parameters from a raw query while keeping the
// order and encoding of the rest.
func removeParams(rawQuery string, names []string) string {
	if rawQuery == "" {
		return rawQuery
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if containsExact(names, key) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

func containsExact(slice []string, value string) bool {
	for _, s := range slice {
		if s == value {
			return true
		}
	}
	return false
}
