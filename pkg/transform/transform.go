// Package transform provides the mutators applied to a recorded response
// before it is replayed to the client.
package transform

import (
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/getmockd/testproxy/pkg/recording"
)

// Transform mutates a replayed response. incoming is the playback request
// that selected the response; response is always a copy owned by the caller.
type Transform interface {
	Name() string
	Apply(incoming *recording.Request, response *recording.Response)
}

// Pipeline applies transforms in order.
type Pipeline []Transform

// Apply runs every transform against response.
func (p Pipeline) Apply(incoming *recording.Request, response *recording.Response) {
	for _, t := range p {
		t.Apply(incoming, response)
	}
}

// Header names echoed from the playback request into the response.
const (
	HeaderClientRequestID = "X-Ms-Client-Request-Id"
	HeaderClientID        = "X-Ms-Client-Id"
	HeaderAPIVersion      = "Api-Version"
	HeaderRetryAfter      = "Retry-After"
)

// Defaults returns the process-wide default transforms in their fixed order.
func Defaults() Pipeline {
	return Pipeline{
		NewStorageRequestIDTransform(),
		NewClientIDTransform(),
		mustHeader(NewHeaderTransform(HeaderRetryAfter, "0", nil)),
	}
}

// echo copies a request header onto the response. The response is only
// changed when it already carries the header, so replayed responses gain no
// headers the service never sent.
type echo struct {
	name   string
	header string
}

func (t *echo) Name() string { return t.name }

func (t *echo) Apply(incoming *recording.Request, response *recording.Response) {
	value := incoming.Headers.Get(t.header)
	if value == "" || response.Headers.Get(t.header) == "" {
		return
	}
	response.Headers.Set(t.header, value)
}

// NewStorageRequestIDTransform echoes the client request id so clients that
// verify the round trip accept replayed responses.
func NewStorageRequestIDTransform() Transform {
	return &echo{name: TypeStorageRequestID, header: HeaderClientRequestID}
}

// NewClientIDTransform echoes the client id header.
func NewClientIDTransform() Transform {
	return &echo{name: TypeClientID, header: HeaderClientID}
}

// NewAPIVersionTransform echoes the api-version header.
func NewAPIVersionTransform() Transform {
	return &echo{name: TypeAPIVersion, header: HeaderAPIVersion}
}

// HeaderTransform replaces the value of a response header that is already
// present. An optional condition restricts which exchanges are affected.
type HeaderTransform struct {
	key       string
	value     string
	condition *condition
}

// NewHeaderTransform validates key and value and compiles cond.
func NewHeaderTransform(key, value string, cond *Condition) (*HeaderTransform, error) {
	if !httpguts.ValidHeaderFieldName(key) {
		return nil, fmt.Errorf("invalid header name %q", key)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return nil, fmt.Errorf("invalid value for header %s", key)
	}

	c, err := compileCondition(cond)
	if err != nil {
		return nil, err
	}

	return &HeaderTransform{
		key:       http.CanonicalHeaderKey(key),
		value:     value,
		condition: c,
	}, nil
}

func (t *HeaderTransform) Name() string { return TypeHeader }

func (t *HeaderTransform) Apply(incoming *recording.Request, response *recording.Response) {
	if len(response.Headers.Values(t.key)) == 0 {
		return
	}
	if !t.condition.matches(incoming, response) {
		return
	}
	response.Headers.Set(t.key, t.value)
}

func mustHeader(t *HeaderTransform, err error) *HeaderTransform {
	if err != nil {
		panic(err)
	}
	return t
}
