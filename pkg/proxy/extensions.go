package proxy

import (
	"sync"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/transform"
)

// Extensions holds the process-wide default sanitizers, transforms and
// matcher. Sessions layer their own additions on top; nothing a session does
// changes the defaults.
type Extensions struct {
	mu         sync.RWMutex
	sanitizers []sanitize.Sanitizer
	transforms []transform.Transform
	matcher    matching.Matcher
}

// NewExtensions returns the built-in defaults.
func NewExtensions() *Extensions {
	e := &Extensions{}
	e.Reset()
	return e
}

// Reset restores the built-in defaults.
func (e *Extensions) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sanitizers = []sanitize.Sanitizer{sanitize.NewRecordedTestSanitizer()}
	e.transforms = transform.Defaults()
	e.matcher = matching.NewRecordMatcher()
}

// Sanitizers returns a copy of the default sanitizers.
func (e *Extensions) Sanitizers() []sanitize.Sanitizer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]sanitize.Sanitizer{}, e.sanitizers...)
}

// Transforms returns a copy of the default transforms.
func (e *Extensions) Transforms() []transform.Transform {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]transform.Transform{}, e.transforms...)
}

// Matcher returns the default matcher.
func (e *Extensions) Matcher() matching.Matcher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher
}

// AddSanitizer appends a default sanitizer.
func (e *Extensions) AddSanitizer(s sanitize.Sanitizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sanitizers = append(e.sanitizers, s)
}

// AddTransform appends a default transform.
func (e *Extensions) AddTransform(t transform.Transform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transforms = append(e.transforms, t)
}

// SetMatcher replaces the default matcher.
func (e *Extensions) SetMatcher(m matching.Matcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matcher = m
}

// ModifiableSession is the per-session override bag. It is guarded by the
// owning session's lock.
type ModifiableSession struct {
	AdditionalSanitizers []sanitize.Sanitizer
	AdditionalTransforms []transform.Transform
	CustomMatcher        matching.Matcher
}

// Reset clears every override.
func (m *ModifiableSession) Reset() {
	m.AdditionalSanitizers = []sanitize.Sanitizer{}
	m.AdditionalTransforms = []transform.Transform{}
	m.CustomMatcher = nil
}

func (m *ModifiableSession) clone() ModifiableSession {
	return ModifiableSession{
		AdditionalSanitizers: append([]sanitize.Sanitizer{}, m.AdditionalSanitizers...),
		AdditionalTransforms: append([]transform.Transform{}, m.AdditionalTransforms...),
		CustomMatcher:        m.CustomMatcher,
	}
}

func newModifiableSession() ModifiableSession {
	var m ModifiableSession
	m.Reset()
	return m
}

// effective sequences are recomputed on every call: defaults first, then
// the session's additions.
func (e *Extensions) sanitizersFor(m *ModifiableSession) sanitize.Pipeline {
	return append(sanitize.Pipeline(e.Sanitizers()), m.AdditionalSanitizers...)
}

func (e *Extensions) transformsFor(m *ModifiableSession) transform.Pipeline {
	return append(transform.Pipeline(e.Transforms()), m.AdditionalTransforms...)
}

func (e *Extensions) matcherFor(m *ModifiableSession) matching.Matcher {
	if m.CustomMatcher != nil {
		return m.CustomMatcher
	}
	return e.Matcher()
}
