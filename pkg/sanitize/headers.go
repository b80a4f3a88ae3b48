package sanitize

import (
	"net/http"
	"regexp"

	"github.com/getmockd/testproxy/pkg/recording"
)

// DefaultHeaders are the credential-bearing headers scrubbed from every
// recording.
var DefaultHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-API-Key",
	"X-Auth-Token",
}

var sigParam = regexp.MustCompile(`([?&]sig=)[^&]*`)

// RecordedTestSanitizer is the default sanitizer. It masks credential
// headers and the shared access signature query parameter.
type RecordedTestSanitizer struct {
	Headers []string
}

// NewRecordedTestSanitizer returns a sanitizer that masks DefaultHeaders.
func NewRecordedTestSanitizer() *RecordedTestSanitizer {
	return &RecordedTestSanitizer{Headers: DefaultHeaders}
}

func (s *RecordedTestSanitizer) Sanitize(e *recording.Entry) {
	for _, name := range s.Headers {
		canonical := http.CanonicalHeaderKey(name)
		maskHeader(e.Request.Headers, canonical)
		maskHeader(e.Response.Headers, canonical)
	}
	e.Request.URI = sigParam.ReplaceAllString(e.Request.URI, "${1}"+SanitizedValue)
}

func maskHeader(h http.Header, canonical string) {
	values := headerValues(h, canonical)
	for i := range values {
		values[i] = SanitizedValue
	}
}

// RemoveHeaderSanitizer drops headers from both halves of an entry.
type RemoveHeaderSanitizer struct {
	headers []string
}

// NewRemoveHeaderSanitizer creates a sanitizer that removes the named headers.
func NewRemoveHeaderSanitizer(headers ...string) (*RemoveHeaderSanitizer, error) {
	if len(headers) == 0 {
		return nil, errRequired("headers")
	}
	canonical := make([]string, 0, len(headers))
	for _, h := range headers {
		if h == "" {
			continue
		}
		canonical = append(canonical, http.CanonicalHeaderKey(h))
	}
	if len(canonical) == 0 {
		return nil, errRequired("headers")
	}
	return &RemoveHeaderSanitizer{headers: canonical}, nil
}

func (s *RemoveHeaderSanitizer) Sanitize(e *recording.Entry) {
	for _, h := range []http.Header{e.Request.Headers, e.Response.Headers} {
		for name := range h {
			for _, remove := range s.headers {
				if http.CanonicalHeaderKey(name) == remove {
					delete(h, name)
				}
			}
		}
	}
}
