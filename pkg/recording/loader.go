package recording

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Encode serializes a session as an indented JSON document.
func Encode(s *Session) ([]byte, error) {
	data, err := json.MarshalIndent(s.Document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recording: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode validates and parses a recording document.
func Decode(data []byte) (*Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorrupted)
	}
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	s := &Session{
		Entries:   doc.Entries,
		Variables: doc.Variables,
	}
	if s.Entries == nil {
		s.Entries = make([]*Entry, 0)
	}
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}
	return s, nil
}

// LoadFromFile reads a recording document from disk. A missing file is
// reported with an error wrapping fs.ErrNotExist.
func LoadFromFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("recording %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read recording %s: %w", path, err)
	}

	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", path, err)
	}
	return s, nil
}

// SaveToFile writes a recording document using a temp file and rename so a
// concurrent reader never observes a partial document. Parent directories
// are created as needed.
func SaveToFile(path string, s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
