package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/testproxy/pkg/recording"
)

// MemoryStorage keeps sessions in process. A stored session stays counted
// until it is deleted.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*recording.Session
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*recording.Session),
	}
}

// Load returns a copy of the stored session. Entries are shared with the
// stored copy since they are never mutated.
func (m *MemoryStorage) Load(ctx context.Context, key string) (*recording.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return s.Clone(), nil
}

// Save stores a copy of s under key, replacing any previous session.
func (m *MemoryStorage) Save(ctx context.Context, key string, s *recording.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := s.Clone()
	m.mu.Lock()
	m.sessions[key] = c
	m.mu.Unlock()
	return nil
}

// Delete removes a session. Returns true if it existed.
func (m *MemoryStorage) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		delete(m.sessions, key)
		return true
	}
	return false
}

// Has reports whether key is stored.
func (m *MemoryStorage) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[key]
	return ok
}

// Count returns the number of stored sessions.
func (m *MemoryStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Keys returns the stored keys in sorted order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Preload loads every recording below dir matching pattern (doublestar
// syntax, "**" for recursion) and stores it under its slash-separated path
// relative to dir. Files are read concurrently; the first failure aborts the
// preload and nothing is stored. Returns the number of sessions stored.
func (m *MemoryStorage) Preload(ctx context.Context, dir, pattern string) (int, error) {
	if pattern == "" {
		pattern = "**/*" + recording.DefaultExtension
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("expanding glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}
	sort.Strings(matches)

	loaded := make([]*recording.Session, len(matches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, match := range matches {
		i, match := i, match
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := recording.LoadFromFile(filepath.Join(dir, filepath.FromSlash(match)))
			if err != nil {
				return fmt.Errorf("loading %s: %w", match, err)
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	for i, match := range matches {
		m.sessions[match] = loaded[i]
	}
	m.mu.Unlock()

	return len(matches), nil
}
