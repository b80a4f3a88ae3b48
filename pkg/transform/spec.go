package transform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned by Build for an unrecognised transform type.
var ErrUnknownType = errors.New("unknown transform type")

// Transform type names accepted by Build. Matching is case-insensitive.
const (
	TypeStorageRequestID = "StorageRequestIdTransform"
	TypeClientID         = "ClientIdTransform"
	TypeHeader           = "HeaderTransform"
	TypeAPIVersion       = "ApiVersionTransform"
)

// Spec is the declarative form of a transform.
type Spec struct {
	Type      string     `json:"type" yaml:"type"`
	Key       string     `json:"key,omitempty" yaml:"key,omitempty"`
	Value     string     `json:"value,omitempty" yaml:"value,omitempty"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Build constructs the transform described by spec.
func Build(spec Spec) (Transform, error) {
	switch {
	case strings.EqualFold(spec.Type, TypeStorageRequestID):
		return NewStorageRequestIDTransform(), nil
	case strings.EqualFold(spec.Type, TypeClientID):
		return NewClientIDTransform(), nil
	case strings.EqualFold(spec.Type, TypeAPIVersion):
		return NewAPIVersionTransform(), nil
	case strings.EqualFold(spec.Type, TypeHeader):
		t, err := NewHeaderTransform(spec.Key, spec.Value, spec.Condition)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Type, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
}

// BuildAll constructs transforms in order and stops at the first error.
func BuildAll(specs []Spec) (Pipeline, error) {
	out := make(Pipeline, 0, len(specs))
	for i, spec := range specs {
		t, err := Build(spec)
		if err != nil {
			return nil, fmt.Errorf("transform %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
