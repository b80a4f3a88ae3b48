package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use
// errors.Is.
var (
	// ErrSessionNotFound is returned for an unknown or already stopped
	// session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRecordingNotFound is returned when playback names a recording that
	// does not exist.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrHeaderRequired is returned when a required protocol header is
	// missing or empty.
	ErrHeaderRequired = errors.New("required header missing")

	// ErrInvalidRequest is returned for malformed operation arguments.
	ErrInvalidRequest = errors.New("invalid request")
)

// SessionError reports an operation on an unknown session id.
type SessionError struct {
	ID string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("no active session with id %q", e.ID)
}

func (e *SessionError) Unwrap() error { return ErrSessionNotFound }

// RecordingNotFoundError reports a missing recording. Path is the path as
// supplied by the caller; Resolved is where it was looked for.
type RecordingNotFoundError struct {
	Path     string
	Resolved string
}

func (e *RecordingNotFoundError) Error() string {
	if e.Resolved != "" && e.Resolved != e.Path {
		return fmt.Sprintf("recording file %s does not exist (resolved to %s)", e.Path, e.Resolved)
	}
	return fmt.Sprintf("recording file %s does not exist", e.Path)
}

func (e *RecordingNotFoundError) Unwrap() error { return ErrRecordingNotFound }

// HeaderError reports a missing required header.
type HeaderError struct {
	Name string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("required header %s is missing", e.Name)
}

func (e *HeaderError) Unwrap() error { return ErrHeaderRequired }
