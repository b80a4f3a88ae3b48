package sanitize

import (
	"net/http"
	"unicode/utf8"

	"github.com/getmockd/testproxy/pkg/recording"
)

// URIRegexSanitizer rewrites the request URI.
type URIRegexSanitizer struct {
	r *replacer
}

// NewURIRegexSanitizer creates a URI sanitizer. An empty value means
// SanitizedValue; group optionally names or numbers the capture group to
// replace.
func NewURIRegexSanitizer(regex, value, group string) (*URIRegexSanitizer, error) {
	r, err := newReplacer(regex, value, group)
	if err != nil {
		return nil, err
	}
	return &URIRegexSanitizer{r: r}, nil
}

func (s *URIRegexSanitizer) Sanitize(e *recording.Entry) {
	e.Request.URI = s.r.replace(e.Request.URI)
}

// BodyRegexSanitizer rewrites textual request and response bodies.
// Binary bodies are left alone.
type BodyRegexSanitizer struct {
	r *replacer
}

// NewBodyRegexSanitizer creates a body sanitizer.
func NewBodyRegexSanitizer(regex, value, group string) (*BodyRegexSanitizer, error) {
	r, err := newReplacer(regex, value, group)
	if err != nil {
		return nil, err
	}
	return &BodyRegexSanitizer{r: r}, nil
}

func (s *BodyRegexSanitizer) Sanitize(e *recording.Entry) {
	e.Request.Body = replaceBody(s.r, e.Request.Body)
	e.Response.Body = replaceBody(s.r, e.Response.Body)
}

// HeaderRegexSanitizer rewrites the values of one header on both halves of
// the entry. Without a regex every value of the header is replaced.
type HeaderRegexSanitizer struct {
	key   string
	value string
	r     *replacer
}

// NewHeaderRegexSanitizer creates a header sanitizer for key.
func NewHeaderRegexSanitizer(key, regex, value, group string) (*HeaderRegexSanitizer, error) {
	if key == "" {
		return nil, errRequired("key")
	}
	if value == "" {
		value = SanitizedValue
	}
	s := &HeaderRegexSanitizer{key: http.CanonicalHeaderKey(key), value: value}
	if regex != "" {
		r, err := newReplacer(regex, value, group)
		if err != nil {
			return nil, err
		}
		s.r = r
	}
	return s, nil
}

func (s *HeaderRegexSanitizer) Sanitize(e *recording.Entry) {
	s.apply(e.Request.Headers)
	s.apply(e.Response.Headers)
}

func (s *HeaderRegexSanitizer) apply(h http.Header) {
	values := headerValues(h, s.key)
	for i := range values {
		if s.r == nil {
			values[i] = s.value
			continue
		}
		values[i] = s.r.replace(values[i])
	}
}

// GeneralRegexSanitizer applies one expression to the URI, every header
// value and both bodies.
type GeneralRegexSanitizer struct {
	r *replacer
}

// NewGeneralRegexSanitizer creates a sanitizer that covers the whole entry.
func NewGeneralRegexSanitizer(regex, value, group string) (*GeneralRegexSanitizer, error) {
	r, err := newReplacer(regex, value, group)
	if err != nil {
		return nil, err
	}
	return &GeneralRegexSanitizer{r: r}, nil
}

func (s *GeneralRegexSanitizer) Sanitize(e *recording.Entry) {
	e.Request.URI = s.r.replace(e.Request.URI)
	for _, h := range []http.Header{e.Request.Headers, e.Response.Headers} {
		for _, values := range h {
			for i := range values {
				values[i] = s.r.replace(values[i])
			}
		}
	}
	e.Request.Body = replaceBody(s.r, e.Request.Body)
	e.Response.Body = replaceBody(s.r, e.Response.Body)
}

func replaceBody(r *replacer, body []byte) []byte {
	if len(body) == 0 || !utf8.Valid(body) {
		return body
	}
	return []byte(r.replace(string(body)))
}

// headerValues looks a header up case-insensitively. Headers recorded from
// the wire are canonical but documents written by other tools may not be.
func headerValues(h http.Header, canonical string) []string {
	if v, ok := h[canonical]; ok {
		return v
	}
	for name, v := range h {
		if http.CanonicalHeaderKey(name) == canonical {
			return v
		}
	}
	return nil
}
