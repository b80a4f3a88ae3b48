package sanitize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned by Build for an unrecognised sanitizer type.
var ErrUnknownType = errors.New("unknown sanitizer type")

// Sanitizer type names accepted by Build. Matching is case-insensitive.
const (
	TypeRecordedTest = "RecordedTestSanitizer"
	TypeURIRegex     = "UriRegexSanitizer"
	TypeBodyRegex    = "BodyRegexSanitizer"
	TypeHeaderRegex  = "HeaderRegexSanitizer"
	TypeGeneralRegex = "GeneralRegexSanitizer"
	TypeBodyKey      = "BodyKeySanitizer"
	TypeRemoveHeader = "RemoveHeaderSanitizer"
	TypeXMLElement   = "XmlElementSanitizer"
)

// Spec is the declarative form of a sanitizer, as it appears in config files
// and admin requests.
type Spec struct {
	Type            string   `json:"type" yaml:"type"`
	Key             string   `json:"key,omitempty" yaml:"key,omitempty"`
	Regex           string   `json:"regex,omitempty" yaml:"regex,omitempty"`
	Value           string   `json:"value,omitempty" yaml:"value,omitempty"`
	GroupForReplace string   `json:"groupForReplace,omitempty" yaml:"groupForReplace,omitempty"`
	JSONPath        string   `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	Headers         []string `json:"headersForRemoval,omitempty" yaml:"headersForRemoval,omitempty"`
	Element         string   `json:"element,omitempty" yaml:"element,omitempty"`
}

// Build constructs the sanitizer described by spec. Configuration problems
// such as an invalid regex are reported here, never at apply time.
func Build(spec Spec) (Sanitizer, error) {
	var (
		s   Sanitizer
		err error
	)

	switch {
	case strings.EqualFold(spec.Type, TypeRecordedTest):
		return NewRecordedTestSanitizer(), nil
	case strings.EqualFold(spec.Type, TypeURIRegex):
		s, err = NewURIRegexSanitizer(spec.Regex, spec.Value, spec.GroupForReplace)
	case strings.EqualFold(spec.Type, TypeBodyRegex):
		s, err = NewBodyRegexSanitizer(spec.Regex, spec.Value, spec.GroupForReplace)
	case strings.EqualFold(spec.Type, TypeHeaderRegex):
		s, err = NewHeaderRegexSanitizer(spec.Key, spec.Regex, spec.Value, spec.GroupForReplace)
	case strings.EqualFold(spec.Type, TypeGeneralRegex):
		s, err = NewGeneralRegexSanitizer(spec.Regex, spec.Value, spec.GroupForReplace)
	case strings.EqualFold(spec.Type, TypeBodyKey):
		s, err = NewBodyKeySanitizer(spec.JSONPath, spec.Value, spec.Regex, spec.GroupForReplace)
	case strings.EqualFold(spec.Type, TypeRemoveHeader):
		s, err = NewRemoveHeaderSanitizer(spec.Headers...)
	case strings.EqualFold(spec.Type, TypeXMLElement):
		s, err = NewXMLElementSanitizer(spec.Element, spec.Value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Type, err)
	}
	return s, nil
}

// BuildAll constructs sanitizers in order and stops at the first error.
func BuildAll(specs []Spec) (Pipeline, error) {
	out := make(Pipeline, 0, len(specs))
	for i, spec := range specs {
		s, err := Build(spec)
		if err != nil {
			return nil, fmt.Errorf("sanitizer %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}
