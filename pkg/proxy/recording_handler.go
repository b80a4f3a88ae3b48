// Package proxy implements the record/playback engine: session lifecycle,
// entry capture, request matching and response replay.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/testproxy/internal/id"
	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/logging"
	"github.com/getmockd/testproxy/pkg/metrics"
	"github.com/getmockd/testproxy/pkg/recording"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/store"
	"github.com/getmockd/testproxy/pkg/transform"
)

// StorageMode selects where a session's recording lives.
type StorageMode string

const (
	// StorageFile keeps the recording in a file below the storage root.
	StorageFile StorageMode = "file"
	// StorageMemory keeps the recording in process, keyed by session id.
	StorageMemory StorageMode = "memory"
)

// ParseStorageMode parses a storage mode. Empty means StorageFile.
func ParseStorageMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StorageFile):
		return StorageFile, nil
	case string(StorageMemory), "in-memory", "inmemory":
		return StorageMemory, nil
	default:
		return "", fmt.Errorf("%w: unknown storage mode %q", ErrInvalidRequest, s)
	}
}

// Consumption selects how playback treats entries that already matched.
type Consumption string

const (
	// ConsumeSequential marks a matched entry as used so identical requests
	// receive successive recorded responses.
	ConsumeSequential Consumption = "sequential"
	// ConsumeReuse lets the first matching entry answer every identical
	// request.
	ConsumeReuse Consumption = "reuse"
)

// SessionInfo summarises an active session.
type SessionInfo struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Path      string      `json:"path,omitempty"`
	Storage   StorageMode `json:"storage"`
	Entries   int         `json:"entries"`
	Remaining int         `json:"remaining,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
}

type recordSession struct {
	mu      sync.Mutex
	id      string
	path    string
	storage StorageMode
	backend store.Storage
	key     string
	data    *recording.Session
	mods    ModifiableSession
	started time.Time
	closed  bool
}

type playbackSession struct {
	mu       sync.Mutex
	id       string
	path     string
	storage  StorageMode
	data     *recording.Session
	consumed []bool
	mods     ModifiableSession
	started  time.Time
	closed   bool
}

// RecordingHandler owns every active recording and playback session.
//
// Operations on different sessions never block each other. Operations on
// the same session serialize on that session's lock. The session maps are
// guarded by a separate lock held only for lookups and registration.
type RecordingHandler struct {
	files       *store.FileStorage
	memory      *store.MemoryStorage
	ext         *Extensions
	log         *slog.Logger
	metrics     *metrics.Metrics
	consumption Consumption

	mu         sync.RWMutex
	recordings map[string]*recordSession
	playbacks  map[string]*playbackSession
}

// NewRecordingHandler creates a handler that persists file recordings in
// files.
func NewRecordingHandler(files *store.FileStorage, opts ...Option) *RecordingHandler {
	h := &RecordingHandler{
		files:       files,
		memory:      store.NewMemoryStorage(),
		ext:         NewExtensions(),
		log:         logging.Nop(),
		consumption: ConsumeSequential,
		recordings:  make(map[string]*recordSession),
		playbacks:   make(map[string]*playbackSession),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.metrics.SetMemorySessions(h.memory.Count())
	return h
}

// Extensions returns the process-wide defaults.
func (h *RecordingHandler) Extensions() *Extensions {
	return h.ext
}

// FileStorage returns the disk-backed store.
func (h *RecordingHandler) FileStorage() *store.FileStorage {
	return h.files
}

// MemoryStorage returns the in-memory store.
func (h *RecordingHandler) MemoryStorage() *store.MemoryStorage {
	return h.memory
}

// InMemoryCount returns the number of recordings held in memory.
func (h *RecordingHandler) InMemoryCount() int {
	return h.memory.Count()
}

// resolver is implemented by storage backends whose keys map to locations.
type resolver interface {
	Resolve(key string) string
}

// storageFor returns the backend that holds recordings for mode.
func (h *RecordingHandler) storageFor(mode StorageMode) store.Storage {
	if mode == StorageMemory {
		return h.memory
	}
	return h.files
}

// newSessionID returns an id unused by both session maps. Callers hold h.mu.
func (h *RecordingHandler) newSessionID() string {
	for {
		sid := id.Session()
		_, inRecord := h.recordings[sid]
		_, inPlayback := h.playbacks[sid]
		if !inRecord && !inPlayback {
			return sid
		}
	}
}

// StartRecording opens a recording session and returns its id. A file
// recording is written to path when stopped; a memory recording is kept in
// process under the returned id.
func (h *RecordingHandler) StartRecording(ctx context.Context, path string, storage StorageMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if storage == "" {
		storage = StorageFile
	}
	if storage == StorageFile && path == "" {
		return "", fmt.Errorf("%w: a recording file is required", ErrInvalidRequest)
	}

	rs := &recordSession{
		path:    path,
		storage: storage,
		backend: h.storageFor(storage),
		key:     path,
		data:    recording.NewSession(),
		mods:    newModifiableSession(),
		started: time.Now(),
	}

	h.mu.Lock()
	rs.id = h.newSessionID()
	if storage == StorageMemory {
		rs.key = rs.id
	}
	h.recordings[rs.id] = rs
	h.mu.Unlock()

	h.metrics.SessionStarted(metrics.KindRecord)
	h.log.Info("recording started", "session_id", rs.id, "path", path, "storage", storage)
	return rs.id, nil
}

func (h *RecordingHandler) lookupRecord(sid string) (*recordSession, error) {
	h.mu.RLock()
	rs, ok := h.recordings[sid]
	h.mu.RUnlock()
	if !ok {
		return nil, &SessionError{ID: sid}
	}
	return rs, nil
}

func (h *RecordingHandler) lookupPlayback(sid string) (*playbackSession, error) {
	h.mu.RLock()
	ps, ok := h.playbacks[sid]
	h.mu.RUnlock()
	if !ok {
		return nil, &SessionError{ID: sid}
	}
	return ps, nil
}

// AddEntry captures a proxied exchange into a recording session.
func (h *RecordingHandler) AddEntry(sid string, req *http.Request, reqBody []byte, resp *http.Response, respBody []byte) error {
	entry, err := recording.NewEntry(req, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	entry.CaptureResponse(resp, respBody)
	return h.AppendEntry(sid, entry)
}

// AppendEntry sanitizes a copy of entry with the session's effective
// sanitizers and appends it. The caller's entry is not modified.
func (h *RecordingHandler) AppendEntry(sid string, entry *recording.Entry) error {
	rs, err := h.lookupRecord(sid)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return &SessionError{ID: sid}
	}

	e := entry.Clone()
	h.ext.sanitizersFor(&rs.mods).Apply(e)
	rs.data.Entries = append(rs.data.Entries, e)

	h.metrics.EntryRecorded()
	h.log.Debug("entry recorded", "session_id", sid, "entry", e.String())
	return nil
}

// StopRecording persists the session with variables as its variable map
// and removes it. Nil or empty variables persist as an empty map. When
// saving fails the session stays active so the caller can retry.
func (h *RecordingHandler) StopRecording(ctx context.Context, sid string, variables map[string]string) error {
	rs, err := h.lookupRecord(sid)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return &SessionError{ID: sid}
	}

	rs.data.Variables = make(map[string]string, len(variables))
	rs.data.MergeVariables(variables)

	if err = rs.backend.Save(ctx, rs.key, rs.data); err != nil {
		rs.mu.Unlock()
		return fmt.Errorf("failed to save recording %s: %w", sid, err)
	}
	rs.closed = true
	entries := len(rs.data.Entries)
	rs.mu.Unlock()

	h.mu.Lock()
	delete(h.recordings, sid)
	h.mu.Unlock()

	h.metrics.SessionStopped(metrics.KindRecord)
	h.metrics.SetMemorySessions(h.memory.Count())
	h.log.Info("recording stopped", "session_id", sid, "path", rs.path, "storage", rs.storage, "entries", entries)
	return nil
}

// StartPlayback loads a recording and opens a playback session over it.
// For StorageFile, path names a recording file; for StorageMemory it is the
// id of a stopped in-memory recording.
func (h *RecordingHandler) StartPlayback(ctx context.Context, path string, storage StorageMode) (string, error) {
	if storage == "" {
		storage = StorageFile
	}
	if path == "" {
		return "", fmt.Errorf("%w: a recording file is required", ErrInvalidRequest)
	}

	backend := h.storageFor(storage)
	data, err := backend.Load(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			nf := &RecordingNotFoundError{Path: path}
			if r, ok := backend.(resolver); ok {
				nf.Resolved = r.Resolve(path)
			}
			return "", nf
		}
		return "", fmt.Errorf("failed to load recording %s: %w", path, err)
	}

	ps := &playbackSession{
		path:     path,
		storage:  storage,
		data:     data,
		consumed: make([]bool, len(data.Entries)),
		mods:     newModifiableSession(),
		started:  time.Now(),
	}

	h.mu.Lock()
	ps.id = h.newSessionID()
	h.playbacks[ps.id] = ps
	h.mu.Unlock()

	h.metrics.SessionStarted(metrics.KindPlayback)
	h.log.Info("playback started", "session_id", ps.id, "path", path, "storage", storage, "entries", len(data.Entries))
	return ps.id, nil
}

// Variables returns a copy of the variables loaded with a playback session.
func (h *RecordingHandler) Variables(sid string) (map[string]string, error) {
	ps, err := h.lookupPlayback(sid)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, &SessionError{ID: sid}
	}

	out := make(map[string]string, len(ps.data.Variables))
	for k, v := range ps.data.Variables {
		out[k] = v
	}
	return out, nil
}

// StopPlayback closes a playback session. With purge, an in-memory
// recording is removed from memory storage and no longer counted.
func (h *RecordingHandler) StopPlayback(sid string, purge bool) error {
	h.mu.Lock()
	ps, ok := h.playbacks[sid]
	if ok {
		delete(h.playbacks, sid)
	}
	h.mu.Unlock()
	if !ok {
		return &SessionError{ID: sid}
	}

	ps.mu.Lock()
	ps.closed = true
	ps.mu.Unlock()

	purged := false
	if purge && ps.storage == StorageMemory {
		purged = h.memory.Delete(ps.path)
		h.metrics.SetMemorySessions(h.memory.Count())
	}

	h.metrics.SessionStopped(metrics.KindPlayback)
	h.log.Info("playback stopped", "session_id", sid, "path", ps.path, "purged", purged)
	return nil
}

// HandleRequest answers a proxied request from a playback session.
func (h *RecordingHandler) HandleRequest(sid string, r *http.Request, body []byte) (*recording.Response, error) {
	incoming, err := recording.NewEntry(r, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return h.Playback(sid, &incoming.Request)
}

// Playback finds the recorded response for incoming. The incoming request
// is sanitized with the session's effective sanitizers before matching and
// the response is a transformed copy of the recorded one.
func (h *RecordingHandler) Playback(sid string, incoming *recording.Request) (*recording.Response, error) {
	ps, err := h.lookupPlayback(sid)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, &SessionError{ID: sid}
	}

	probe := &recording.Entry{Request: incoming.Clone()}
	h.ext.sanitizersFor(&ps.mods).Apply(probe)

	var available func(int) bool
	if h.consumption != ConsumeReuse {
		available = func(i int) bool { return !ps.consumed[i] }
	}

	idx, err := matching.FindMatch(h.ext.matcherFor(&ps.mods), &probe.Request, ps.data.Entries, available)
	if err != nil {
		h.metrics.PlaybackRequest(metrics.ResultMiss)
		attrs := []any{"session_id", sid, "method", incoming.Method, "uri", incoming.URI}
		var mm *matching.MismatchError
		if errors.As(err, &mm) && mm.Closest != nil {
			attrs = append(attrs, "closest", mm.Closest.Entry, "reason", mm.Closest.Reason)
		}
		h.log.Warn("no matching entry", attrs...)
		return nil, err
	}

	if h.consumption != ConsumeReuse {
		ps.consumed[idx] = true
	}

	resp := ps.data.Entries[idx].Response.Clone()
	h.ext.transformsFor(&ps.mods).Apply(incoming, &resp)

	h.metrics.PlaybackRequest(metrics.ResultMatch)
	return &resp, nil
}

// modifySession runs fn against the override bag of an active session.
func (h *RecordingHandler) modifySession(sid string, fn func(*ModifiableSession)) error {
	h.mu.RLock()
	rs, isRecord := h.recordings[sid]
	ps, isPlayback := h.playbacks[sid]
	h.mu.RUnlock()

	switch {
	case isRecord:
		rs.mu.Lock()
		defer rs.mu.Unlock()
		if rs.closed {
			return &SessionError{ID: sid}
		}
		fn(&rs.mods)
	case isPlayback:
		ps.mu.Lock()
		defer ps.mu.Unlock()
		if ps.closed {
			return &SessionError{ID: sid}
		}
		fn(&ps.mods)
	default:
		return &SessionError{ID: sid}
	}
	return nil
}

// AddSanitizer registers s as a default when sid is empty, or on the
// session otherwise.
func (h *RecordingHandler) AddSanitizer(sid string, s sanitize.Sanitizer) error {
	if s == nil {
		return fmt.Errorf("%w: sanitizer is nil", ErrInvalidRequest)
	}
	if sid == "" {
		h.ext.AddSanitizer(s)
		return nil
	}
	return h.modifySession(sid, func(m *ModifiableSession) {
		m.AdditionalSanitizers = append(m.AdditionalSanitizers, s)
	})
}

// AddTransform registers t as a default when sid is empty, or on the
// session otherwise.
func (h *RecordingHandler) AddTransform(sid string, t transform.Transform) error {
	if t == nil {
		return fmt.Errorf("%w: transform is nil", ErrInvalidRequest)
	}
	if sid == "" {
		h.ext.AddTransform(t)
		return nil
	}
	return h.modifySession(sid, func(m *ModifiableSession) {
		m.AdditionalTransforms = append(m.AdditionalTransforms, t)
	})
}

// SetMatcher replaces the default matcher when sid is empty, or sets the
// session's custom matcher otherwise.
func (h *RecordingHandler) SetMatcher(sid string, m matching.Matcher) error {
	if m == nil {
		return fmt.Errorf("%w: matcher is nil", ErrInvalidRequest)
	}
	if sid == "" {
		h.ext.SetMatcher(m)
		return nil
	}
	return h.modifySession(sid, func(ms *ModifiableSession) {
		ms.CustomMatcher = m
	})
}

// SetDefaultExtensions restores the built-in defaults when sid is empty.
// With a session id it clears only that session's overrides; the defaults
// and other sessions are untouched.
func (h *RecordingHandler) SetDefaultExtensions(sid string) error {
	if sid == "" {
		h.ext.Reset()
		h.log.Info("default extensions restored")
		return nil
	}
	return h.modifySession(sid, func(m *ModifiableSession) {
		m.Reset()
	})
}

// SessionExtensions returns a snapshot of a session's overrides.
func (h *RecordingHandler) SessionExtensions(sid string) (ModifiableSession, error) {
	var out ModifiableSession
	err := h.modifySession(sid, func(m *ModifiableSession) {
		out = m.clone()
	})
	return out, err
}

// Sessions lists the active sessions, oldest first.
func (h *RecordingHandler) Sessions() []SessionInfo {
	h.mu.RLock()
	records := make([]*recordSession, 0, len(h.recordings))
	for _, rs := range h.recordings {
		records = append(records, rs)
	}
	playbacks := make([]*playbackSession, 0, len(h.playbacks))
	for _, ps := range h.playbacks {
		playbacks = append(playbacks, ps)
	}
	h.mu.RUnlock()

	out := make([]SessionInfo, 0, len(records)+len(playbacks))
	for _, rs := range records {
		rs.mu.Lock()
		out = append(out, SessionInfo{
			ID:        rs.id,
			Kind:      metrics.KindRecord,
			Path:      rs.path,
			Storage:   rs.storage,
			Entries:   len(rs.data.Entries),
			StartedAt: rs.started,
		})
		rs.mu.Unlock()
	}
	for _, ps := range playbacks {
		ps.mu.Lock()
		remaining := 0
		for _, used := range ps.consumed {
			if !used {
				remaining++
			}
		}
		out = append(out, SessionInfo{
			ID:        ps.id,
			Kind:      metrics.KindPlayback,
			Path:      ps.path,
			Storage:   ps.storage,
			Entries:   len(ps.data.Entries),
			Remaining: remaining,
			StartedAt: ps.started,
		})
		ps.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
