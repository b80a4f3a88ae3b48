// Package recording provides the entry and session model for captured HTTP traffic.
package recording

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Entry is a captured request/response pair. Once appended to a session an
// entry is never mutated; sanitizers and transforms operate on clones.
type Entry struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Request is the captured request half of an entry.
// URI is always absolute. A nil Body means the request carried no body.
type Request struct {
	Method  string
	URI     string
	Headers http.Header
	Body    []byte
}

// Response is the captured response half of an entry.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// NewEntry creates an entry from an incoming proxied request. The absolute
// URI is rebuilt from the upstream base URI header (scheme and host) and the
// request's own path and query. Proxy control headers are not captured.
func NewEntry(r *http.Request, body []byte) (*Entry, error) {
	uri, err := RequestURI(r)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header, len(r.Header))
	for name, values := range r.Header {
		if IsControlHeader(name) {
			continue
		}
		headers[name] = append([]string(nil), values...)
	}

	return &Entry{
		Request: Request{
			Method:  r.Method,
			URI:     uri,
			Headers: headers,
			Body:    body,
		},
	}, nil
}

// RequestURI returns the absolute URI the proxied request was meant for.
func RequestURI(r *http.Request) (string, error) {
	base := r.Header.Get(HeaderUpstreamBaseURI)
	if base == "" {
		if r.URL != nil && r.URL.IsAbs() {
			return r.URL.String(), nil
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		return scheme + "://" + r.Host + r.URL.RequestURI(), nil
	}

	upstream, err := url.Parse(base)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return "", fmt.Errorf("invalid %s header %q", HeaderUpstreamBaseURI, base)
	}

	return upstream.Scheme + "://" + upstream.Host + r.URL.RequestURI(), nil
}

// CaptureResponse records the upstream response into the entry.
func (e *Entry) CaptureResponse(resp *http.Response, body []byte) {
	e.Response = Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
	}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	return &Entry{
		Request:  e.Request.Clone(),
		Response: e.Response.Clone(),
	}
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	return Request{
		Method:  r.Method,
		URI:     r.URI,
		Headers: cloneHeader(r.Headers),
		Body:    cloneBody(r.Body),
	}
}

// Clone returns a deep copy of the response.
func (r Response) Clone() Response {
	return Response{
		StatusCode: r.StatusCode,
		Headers:    cloneHeader(r.Headers),
		Body:       cloneBody(r.Body),
	}
}

// Equal reports whether two entries carry the same method, URI, headers,
// status and bodies. Nil and empty bodies are distinct.
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Request.Method == other.Request.Method &&
		e.Request.URI == other.Request.URI &&
		headersEqual(e.Request.Headers, other.Request.Headers) &&
		bodiesEqual(e.Request.Body, other.Request.Body) &&
		e.Response.StatusCode == other.Response.StatusCode &&
		headersEqual(e.Response.Headers, other.Response.Headers) &&
		bodiesEqual(e.Response.Body, other.Response.Body)
}

// String returns "METHOD URI" for logs and errors.
func (e *Entry) String() string {
	return e.Request.Method + " " + e.Request.URI
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func cloneBody(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func bodiesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

func headersEqual(a, b http.Header) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

// IsControlHeader reports whether name is one of the proxy's own
// x-recording-* headers, which never become part of a recorded entry.
func IsControlHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), controlHeaderPrefix)
}
