package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/getmockd/testproxy/pkg/recording"
)

// FileStorage keeps recordings as JSON documents below a root directory.
type FileStorage struct {
	root string
}

// NewFileStorage creates file storage rooted at root. An empty root means
// DefaultRecordingsDir.
func NewFileStorage(root string) (*FileStorage, error) {
	if root == "" {
		root = DefaultRecordingsDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return &FileStorage{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FileStorage) Root() string {
	return f.root
}

// Resolve maps a caller-supplied path to the file it names. Relative paths
// are joined to the root and a path without an extension gets ".json".
// Resolving is pure: equivalent spellings resolve to the same file.
func (f *FileStorage) Resolve(path string) string {
	if filepath.Ext(path) == "" {
		path += recording.DefaultExtension
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, path)
	}
	return filepath.Clean(path)
}

// Load reads the recording named by path. A missing file is reported as
// ErrNotFound.
func (f *FileStorage) Load(ctx context.Context, path string) (*recording.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := f.Resolve(path)
	s, err := recording.LoadFromFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", resolved, ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

// Save writes s to the file named by path, creating directories as needed.
func (f *FileStorage) Save(ctx context.Context, path string, s *recording.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return recording.SaveToFile(f.Resolve(path), s)
}
