package store

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/testproxy/pkg/recording"
)

func testSession(uri string) *recording.Session {
	s := recording.NewSession()
	s.Entries = append(s.Entries, &recording.Entry{
		Request:  recording.Request{Method: http.MethodGet, URI: uri, Headers: http.Header{}},
		Response: recording.Response{StatusCode: 200, Headers: http.Header{}, Body: []byte("ok")},
	})
	s.Variables["key1"] = "valueabc123"
	return s
}

func TestFileStorage_Resolve(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStorage(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "a", "b.json"), fs.Resolve("a/b"))
	assert.Equal(t, filepath.Join(root, "a", "b.json"), fs.Resolve("a/b.json"))
	assert.Equal(t, filepath.Join(root, "a", "b.json"), fs.Resolve("a/./c/../b.json"))
	assert.Equal(t, fs.Resolve("a/b.json"), fs.Resolve(filepath.Join(root, "a", "b.json")))
	assert.Equal(t, filepath.Join(root, "x.txt"), fs.Resolve("x.txt"))
}

func TestFileStorage_SaveLoad(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "nested/session", testSession("https://h/a")))

	_, err = os.Stat(filepath.Join(fs.Root(), "nested", "session.json"))
	require.NoError(t, err)

	loaded, err := fs.Load(ctx, "nested/session.json")
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, "https://h/a", loaded.Entries[0].Request.URI)
	assert.Equal(t, "valueabc123", loaded.Variables["key1"])
}

func TestFileStorage_LoadMissing(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "does/not/exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStorage_CancelledContext(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, fs.Save(ctx, "a", testSession("https://h/")), context.Canceled)
}

func TestStorage_Backends(t *testing.T) {
	files, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for name, backend := range map[string]Storage{
		"file":   files,
		"memory": NewMemoryStorage(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := backend.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, backend.Save(ctx, "saved", testSession("https://h/"+name)))
			loaded, err := backend.Load(ctx, "saved")
			require.NoError(t, err)
			require.Len(t, loaded.Entries, 1)
			assert.Equal(t, "https://h/"+name, loaded.Entries[0].Request.URI)
			assert.Equal(t, "valueabc123", loaded.Variables["key1"])
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	require.NoError(t, m.Save(ctx, "k1", testSession("https://h/1")))
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Has("k1"))

	s, err := m.Load(ctx, "k1")
	require.NoError(t, err)
	s.Variables["key1"] = "mutated"
	s.Entries = nil

	again, err := m.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "valueabc123", again.Variables["key1"])
	assert.Len(t, again.Entries, 1)

	_, err = m.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.True(t, m.Delete("k1"))
	assert.False(t, m.Delete("k1"))
	assert.Equal(t, 0, m.Count())
}

func TestMemoryStorage_ConcurrentCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := filepath.Join("k", string(rune('a'+i%26)), string(rune('a'+i/26)))
			_ = m.Save(ctx, key, testSession("https://h/"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Count())
	assert.Len(t, m.Keys(), 50)

	for _, k := range m.Keys() {
		k := k
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Delete(k)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}

func TestMemoryStorage_Preload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, recording.SaveToFile(filepath.Join(dir, "a.json"), testSession("https://h/a")))
	require.NoError(t, recording.SaveToFile(filepath.Join(dir, "sub", "deep", "b.json"), testSession("https://h/b")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	m := NewMemoryStorage()
	n, err := m.Preload(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.json", "sub/deep/b.json"}, m.Keys())

	s, err := m.Load(context.Background(), "sub/deep/b.json")
	require.NoError(t, err)
	assert.Equal(t, "https://h/b", s.Entries[0].Request.URI)
}

func TestMemoryStorage_PreloadFailureStoresNothing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, recording.SaveToFile(filepath.Join(dir, "good.json"), testSession("https://h/a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	m := NewMemoryStorage()
	_, err := m.Preload(context.Background(), dir, "*.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, recording.ErrCorrupted))
	assert.Equal(t, 0, m.Count())
}

func TestDefaultDirs(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	assert.Equal(t, filepath.Join("/tmp/xdg-data", "testproxy"), DefaultDataDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-data", "testproxy", "recordings"), DefaultRecordingsDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-config", "testproxy"), DefaultConfigDir())
}
