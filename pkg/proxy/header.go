package proxy

import "net/http"

// GetHeader returns the value of a header on r. When the header is absent
// or empty it returns a *HeaderError, unless allowNulls is set, in which
// case it returns "" and no error.
func GetHeader(r *http.Request, name string, allowNulls bool) (string, error) {
	value := r.Header.Get(name)
	if value == "" && !allowNulls {
		return "", &HeaderError{Name: name}
	}
	return value, nil
}
