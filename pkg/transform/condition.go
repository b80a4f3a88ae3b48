package transform

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/testproxy/pkg/recording"
)

// Condition limits a transform to matching exchanges. All configured parts
// must hold.
type Condition struct {
	// URIRegex must match the playback request URI.
	URIRegex string `json:"uriRegex,omitempty" yaml:"uriRegex,omitempty"`

	// ResponseHeader must be present on the response with a value matching
	// ValueRegex (any value when empty).
	ResponseHeader *HeaderCondition `json:"responseHeader,omitempty" yaml:"responseHeader,omitempty"`

	// Expr is a boolean expression over method, uri, status,
	// requestHeaders and responseHeaders.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// HeaderCondition matches one response header.
type HeaderCondition struct {
	Key        string `json:"key" yaml:"key"`
	ValueRegex string `json:"valueRegex,omitempty" yaml:"valueRegex,omitempty"`
}

type condition struct {
	uri         *regexp.Regexp
	headerKey   string
	headerValue *regexp.Regexp
	program     *vm.Program
}

func exprEnv(incoming *recording.Request, response *recording.Response) map[string]interface{} {
	return map[string]interface{}{
		"method":          incoming.Method,
		"uri":             incoming.URI,
		"status":          response.StatusCode,
		"requestHeaders":  flatten(incoming.Headers),
		"responseHeaders": flatten(response.Headers),
	}
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[http.CanonicalHeaderKey(name)] = h.Get(name)
	}
	return out
}

// compileCondition returns nil for a nil or empty condition.
func compileCondition(c *Condition) (*condition, error) {
	if c == nil {
		return nil, nil
	}

	out := &condition{}
	if c.URIRegex != "" {
		re, err := regexp.Compile(c.URIRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid uriRegex %q: %w", c.URIRegex, err)
		}
		out.uri = re
	}

	if c.ResponseHeader != nil {
		if c.ResponseHeader.Key == "" {
			return nil, errors.New("responseHeader.key is required")
		}
		out.headerKey = http.CanonicalHeaderKey(c.ResponseHeader.Key)
		if c.ResponseHeader.ValueRegex != "" {
			re, err := regexp.Compile(c.ResponseHeader.ValueRegex)
			if err != nil {
				return nil, fmt.Errorf("invalid responseHeader.valueRegex %q: %w", c.ResponseHeader.ValueRegex, err)
			}
			out.headerValue = re
		}
	}

	if c.Expr != "" {
		sample := exprEnv(&recording.Request{}, &recording.Response{})
		program, err := expr.Compile(c.Expr, expr.Env(sample), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", c.Expr, err)
		}
		out.program = program
	}

	return out, nil
}

func (c *condition) matches(incoming *recording.Request, response *recording.Response) bool {
	if c == nil {
		return true
	}

	if c.uri != nil && !c.uri.MatchString(incoming.URI) {
		return false
	}

	if c.headerKey != "" {
		values := response.Headers.Values(c.headerKey)
		if len(values) == 0 {
			return false
		}
		if c.headerValue != nil && !c.headerValue.MatchString(values[0]) {
			return false
		}
	}

	if c.program != nil {
		result, err := expr.Run(c.program, exprEnv(incoming, response))
		if err != nil {
			return false
		}
		ok, _ := result.(bool)
		return ok
	}

	return true
}
