package sanitize

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/getmockd/testproxy/pkg/recording"
)

// bodyWriteOptions keeps rewritten JSON bodies stable: object keys are sorted
// and &, < and > are written as is.
var bodyWriteOptions = oj.Options{Sort: true, HTMLUnsafe: true}

// BodyKeySanitizer replaces the values selected by a JSONPath expression in
// JSON bodies. With a regex only the matching part of string values is
// replaced.
type BodyKeySanitizer struct {
	path  jp.Expr
	value string
	r     *replacer
}

// NewBodyKeySanitizer creates a JSON body sanitizer.
func NewBodyKeySanitizer(jsonPath, value, regex, group string) (*BodyKeySanitizer, error) {
	if jsonPath == "" {
		return nil, errRequired("jsonPath")
	}
	path, err := jp.ParseString(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonPath %q: %w", jsonPath, err)
	}
	if value == "" {
		value = SanitizedValue
	}

	s := &BodyKeySanitizer{path: path, value: value}
	if regex != "" {
		if s.r, err = newReplacer(regex, value, group); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *BodyKeySanitizer) Sanitize(e *recording.Entry) {
	if recording.IsJSONContent(e.Request.Headers.Get("Content-Type")) {
		e.Request.Body = s.apply(e.Request.Body)
	}
	if recording.IsJSONContent(e.Response.Headers.Get("Content-Type")) {
		e.Response.Body = s.apply(e.Response.Body)
	}
}

func (s *BodyKeySanitizer) apply(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	// oj.Parse keeps integers as int64 and oversized numbers as json.Number,
	// so values outside the path are written back unchanged.
	data, err := oj.Parse(body)
	if err != nil {
		return body
	}
	if len(s.path.Get(data)) == 0 {
		return body
	}

	changed := false
	data, err = s.path.Modify(data, func(element any) (any, bool) {
		if s.r == nil {
			changed = true
			return s.value, true
		}
		str, ok := element.(string)
		if !ok {
			return element, false
		}
		replaced := s.r.replace(str)
		if replaced == str {
			return element, false
		}
		changed = true
		return replaced, true
	})
	if err != nil || !changed {
		return body
	}

	out, err := oj.Marshal(data, &bodyWriteOptions)
	if err != nil {
		return body
	}
	return out
}

// XMLElementSanitizer replaces the text of every element with a given local
// name in XML bodies.
type XMLElementSanitizer struct {
	element string
	path    etree.Path
	value   string
}

// NewXMLElementSanitizer creates an XML body sanitizer.
func NewXMLElementSanitizer(element, value string) (*XMLElementSanitizer, error) {
	if element == "" {
		return nil, errRequired("element")
	}
	path, err := etree.CompilePath("//" + element)
	if err != nil {
		return nil, fmt.Errorf("invalid element %q: %w", element, err)
	}
	if value == "" {
		value = SanitizedValue
	}
	return &XMLElementSanitizer{element: element, path: path, value: value}, nil
}

func (s *XMLElementSanitizer) Sanitize(e *recording.Entry) {
	if recording.IsXMLContent(e.Request.Headers.Get("Content-Type")) {
		e.Request.Body = s.apply(e.Request.Body)
	}
	if recording.IsXMLContent(e.Response.Headers.Get("Content-Type")) {
		e.Response.Body = s.apply(e.Response.Body)
	}
}

func (s *XMLElementSanitizer) apply(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return body
	}

	found := doc.FindElementsPath(s.path)
	if len(found) == 0 {
		return body
	}
	for _, el := range found {
		el.SetText(s.value)
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return body
	}
	return out
}
