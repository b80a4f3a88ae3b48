package matching

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned by Build for an unrecognised matcher type.
var ErrUnknownType = errors.New("unknown matcher type")

// Matcher names accepted by Build. Matching is case-insensitive.
const (
	NameRecord     = "RecordMatcher"
	NameBodiless   = "BodilessMatcher"
	NameHeaderless = "HeaderlessMatcher"
	NameCustom     = "CustomDefaultMatcher"
)

// Spec is the declarative form of a matcher.
type Spec struct {
	Type                   string   `json:"type" yaml:"type"`
	CompareBodies          *bool    `json:"compareBodies,omitempty" yaml:"compareBodies,omitempty"`
	IgnoreQueryOrdering    bool     `json:"ignoreQueryOrdering,omitempty" yaml:"ignoreQueryOrdering,omitempty"`
	ExcludedHeaders        []string `json:"excludedHeaders,omitempty" yaml:"excludedHeaders,omitempty"`
	IgnoredHeaders         []string `json:"ignoredHeaders,omitempty" yaml:"ignoredHeaders,omitempty"`
	IncludedHeaders        []string `json:"includedHeaders,omitempty" yaml:"includedHeaders,omitempty"`
	IgnoredQueryParameters []string `json:"ignoredQueryParameters,omitempty" yaml:"ignoredQueryParameters,omitempty"`
}

// Build constructs the matcher described by spec. An empty type means the
// record matcher. Custom matchers start from the record matcher defaults;
// listed excluded headers are added to the default exclusions.
func Build(spec Spec) (Matcher, error) {
	switch {
	case spec.Type == "", strings.EqualFold(spec.Type, NameRecord):
		return NewRecordMatcher(), nil
	case strings.EqualFold(spec.Type, NameBodiless):
		return NewBodilessMatcher(), nil
	case strings.EqualFold(spec.Type, NameHeaderless):
		return NewHeaderlessMatcher(), nil
	case strings.EqualFold(spec.Type, NameCustom):
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}

	m := NewRecordMatcher()
	m.name = NameCustom
	if spec.CompareBodies != nil {
		m.CompareBodies = *spec.CompareBodies
	}
	m.IgnoreQueryOrdering = spec.IgnoreQueryOrdering
	m.ExcludedHeaders = append(append([]string{}, DefaultExcludedHeaders...), spec.ExcludedHeaders...)
	m.IgnoredHeaders = spec.IgnoredHeaders
	m.IncludedHeaders = spec.IncludedHeaders
	m.IgnoredQueryParameters = spec.IgnoredQueryParameters
	return m, nil
}
