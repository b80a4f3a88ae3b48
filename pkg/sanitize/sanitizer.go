// Package sanitize provides the scrubbers applied to recorded entries before
// they are persisted and to incoming requests before they are matched.
//
// A Sanitizer mutates the entry it is given. Callers hand sanitizers a clone
// whenever the original must stay untouched.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/getmockd/testproxy/pkg/recording"
)

// SanitizedValue replaces scrubbed content when no value is configured.
const SanitizedValue = "Sanitized"

// ErrInvalidGroup is returned when a replacement group does not exist in the
// sanitizer's regular expression.
var ErrInvalidGroup = errors.New("invalid replacement group")

// Sanitizer scrubs sensitive content from an entry in place.
type Sanitizer interface {
	Sanitize(e *recording.Entry)
}

// Pipeline applies sanitizers in order.
type Pipeline []Sanitizer

// Apply runs every sanitizer against e.
func (p Pipeline) Apply(e *recording.Entry) {
	for _, s := range p {
		s.Sanitize(e)
	}
}

// replacer substitutes Value for every match of a regular expression, or for
// a single capture group of each match when a group is configured.
type replacer struct {
	re    *regexp.Regexp
	value string
	group int
}

func newReplacer(pattern, value, group string) (*replacer, error) {
	if pattern == "" {
		return nil, errors.New("regex is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	if value == "" {
		value = SanitizedValue
	}

	r := &replacer{re: re, value: value}
	if group == "" {
		return r, nil
	}

	idx := re.SubexpIndex(group)
	if idx < 0 {
		n, err := strconv.Atoi(group)
		if err != nil || n < 0 || n > re.NumSubexp() {
			return nil, fmt.Errorf("%w %q in %q", ErrInvalidGroup, group, pattern)
		}
		idx = n
	}
	r.group = idx
	return r, nil
}

func (r *replacer) replace(s string) string {
	if r.group == 0 {
		return r.re.ReplaceAllLiteralString(s, r.value)
	}

	matches := r.re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*r.group], m[2*r.group+1]
		if start < 0 {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(r.value)
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}
