// Package store provides the storage capability behind playback and
// recording sessions.
//
// Two backends implement Storage:
//   - FileStorage: recording documents on disk, relative paths resolved
//     against a configured root
//   - MemoryStorage: sessions kept in process under a key, counted until
//     purged
//
// Default directories follow the XDG Base Directory Specification:
//   - Data:   ~/.local/share/testproxy/recordings
//   - Config: ~/.config/testproxy
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/getmockd/testproxy/pkg/recording"
)

// ErrNotFound is returned when a key has no stored session.
var ErrNotFound = errors.New("not found")

// Storage loads and saves sessions by key. For FileStorage the key is a
// path; for MemoryStorage it is an opaque identifier.
type Storage interface {
	Load(ctx context.Context, key string) (*recording.Session, error)
	Save(ctx context.Context, key string, s *recording.Session) error
}

var (
	_ Storage = (*FileStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)

const appName = "testproxy"

// DefaultDataDir returns the default data directory following XDG spec.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName, "data")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(home, "AppData", "Local", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigDir returns the default config directory following XDG spec.
func DefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName, "config")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Preferences", appName)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(home, "AppData", "Roaming", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultRecordingsDir returns the default root for recording files.
func DefaultRecordingsDir() string {
	return filepath.Join(DefaultDataDir(), "recordings")
}
