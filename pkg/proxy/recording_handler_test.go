package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/metrics"
	"github.com/getmockd/testproxy/pkg/recording"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/store"
	"github.com/getmockd/testproxy/pkg/transform"
)

const upstream = "https://example.blob.core.windows.net"

func newTestHandler(t *testing.T, opts ...Option) *RecordingHandler {
	t.Helper()
	files, err := store.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return NewRecordingHandler(files, opts...)
}

func proxiedRequest(method, path, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "http://localhost:5000"+path, nil)
	} else {
		r = httptest.NewRequest(method, "http://localhost:5000"+path, strings.NewReader(body))
	}
	r.Header.Set(recording.HeaderUpstreamBaseURI, upstream)
	return r
}

func upstreamResponse(status int, headers map[string]string) *http.Response {
	resp := &http.Response{StatusCode: status, Header: http.Header{}}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func bodyOf(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// record runs a full recording session over the given paths and returns the
// recording path.
func record(t *testing.T, h *RecordingHandler, path string, paths ...string) {
	t.Helper()
	ctx := context.Background()

	sid, err := h.StartRecording(ctx, path, StorageFile)
	require.NoError(t, err)
	for i, p := range paths {
		req := proxiedRequest(http.MethodGet, p, "")
		resp := upstreamResponse(http.StatusOK, map[string]string{"Content-Type": "text/plain"})
		require.NoError(t, h.AddEntry(sid, req, nil, resp, []byte(fmt.Sprintf("response %d", i))))
	}
	require.NoError(t, h.StopRecording(ctx, sid, nil))
}

func TestRecordAndPlayback_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "session/roundtrip", StorageFile)
	require.NoError(t, err)

	req := proxiedRequest(http.MethodPut, "/container/blob?comp=block", "payload")
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", "text/plain")
	resp := upstreamResponse(http.StatusCreated, map[string]string{"Etag": `"0x1"`, "Content-Type": "application/json"})
	require.NoError(t, h.AddEntry(sid, req, []byte("payload"), resp, []byte(`{"ok":true}`)))

	require.NoError(t, h.StopRecording(ctx, sid, map[string]string{"key1": "valueabc123"}))
	assert.Empty(t, h.Sessions())

	loaded, err := recording.LoadFromFile(filepath.Join(h.FileStorage().Root(), "session", "roundtrip.json"))
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, upstream+"/container/blob?comp=block", loaded.Entries[0].Request.URI)
	assert.Equal(t, sanitize.SanitizedValue, loaded.Entries[0].Request.Headers.Get("Authorization"))
	assert.Empty(t, loaded.Entries[0].Request.Headers.Get(recording.HeaderUpstreamBaseURI))

	pid, err := h.StartPlayback(ctx, "session/roundtrip", StorageFile)
	require.NoError(t, err)

	replay := proxiedRequest(http.MethodPut, "/container/blob?comp=block", "payload")
	replay.Header.Set("Authorization", "Bearer a-different-secret")
	replay.Header.Set("Content-Type", "text/plain")
	got, err := h.HandleRequest(pid, replay, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, got.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(got.Body))
	assert.Equal(t, `"0x1"`, got.Headers.Get("Etag"))

	require.NoError(t, h.StopPlayback(pid, false))
}

func TestAddEntry_UpstreamURIWithSpaces(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "spaces", StorageMemory)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://localhost:5000/my%20cool%20directory", nil)
	req.Header.Set(recording.HeaderUpstreamBaseURI, "http://contoso.net")
	require.NoError(t, h.AddEntry(sid, req, nil, upstreamResponse(200, nil), nil))
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	s, err := h.MemoryStorage().Load(ctx, sid)
	require.NoError(t, err)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "http://contoso.net/my%20cool%20directory", s.Entries[0].Request.URI)
}

func TestDefaults_Idempotent(t *testing.T) {
	h := newTestHandler(t)

	check := func() {
		t.Helper()
		assert.Len(t, h.Extensions().Transforms(), 3)
		assert.Len(t, h.Extensions().Sanitizers(), 1)
		assert.IsType(t, &sanitize.RecordedTestSanitizer{}, h.Extensions().Sanitizers()[0])
		assert.Equal(t, matching.NameRecord, h.Extensions().Matcher().Name())

		names := []string{}
		for _, tr := range h.Extensions().Transforms() {
			names = append(names, tr.Name())
		}
		assert.Equal(t, []string{transform.TypeStorageRequestID, transform.TypeClientID, transform.TypeHeader}, names)
	}

	check()
	require.NoError(t, h.SetDefaultExtensions(""))
	check()

	extra, err := sanitize.NewBodyRegexSanitizer("a", "b", "")
	require.NoError(t, err)
	require.NoError(t, h.AddSanitizer("", extra))
	require.NoError(t, h.AddTransform("", transform.NewAPIVersionTransform()))
	require.NoError(t, h.SetMatcher("", matching.NewBodilessMatcher()))
	assert.Len(t, h.Extensions().Sanitizers(), 2)
	assert.Len(t, h.Extensions().Transforms(), 4)

	require.NoError(t, h.SetDefaultExtensions(""))
	check()
	require.NoError(t, h.SetDefaultExtensions(""))
	check()
}

func TestSessionOverrides_Isolated(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	record(t, h, "iso", "/a")

	first, err := h.StartPlayback(ctx, "iso", StorageFile)
	require.NoError(t, err)
	second, err := h.StartPlayback(ctx, "iso", StorageFile)
	require.NoError(t, err)

	extra, err := sanitize.NewURIRegexSanitizer("x", "y", "")
	require.NoError(t, err)
	require.NoError(t, h.AddSanitizer(first, extra))
	require.NoError(t, h.AddTransform(first, transform.NewAPIVersionTransform()))
	require.NoError(t, h.SetMatcher(first, matching.NewHeaderlessMatcher()))

	assert.Len(t, h.Extensions().Sanitizers(), 1)
	assert.Len(t, h.Extensions().Transforms(), 3)
	assert.Equal(t, matching.NameRecord, h.Extensions().Matcher().Name())

	mods, err := h.SessionExtensions(first)
	require.NoError(t, err)
	assert.Len(t, mods.AdditionalSanitizers, 1)
	assert.Len(t, mods.AdditionalTransforms, 1)
	require.NotNil(t, mods.CustomMatcher)

	other, err := h.SessionExtensions(second)
	require.NoError(t, err)
	assert.Empty(t, other.AdditionalSanitizers)
	assert.Empty(t, other.AdditionalTransforms)
	assert.Nil(t, other.CustomMatcher)

	// A global reset leaves session bags alone.
	require.NoError(t, h.SetDefaultExtensions(""))
	mods, err = h.SessionExtensions(first)
	require.NoError(t, err)
	assert.Len(t, mods.AdditionalSanitizers, 1)

	// A session reset clears only that session.
	require.NoError(t, h.AddSanitizer(second, extra))
	require.NoError(t, h.SetDefaultExtensions(first))
	mods, err = h.SessionExtensions(first)
	require.NoError(t, err)
	assert.NotNil(t, mods.AdditionalSanitizers)
	assert.Empty(t, mods.AdditionalSanitizers)
	assert.NotNil(t, mods.AdditionalTransforms)
	assert.Empty(t, mods.AdditionalTransforms)
	assert.Nil(t, mods.CustomMatcher)

	other, err = h.SessionExtensions(second)
	require.NoError(t, err)
	assert.Len(t, other.AdditionalSanitizers, 1)
}

func TestSessionOverrides_UnknownSession(t *testing.T) {
	h := newTestHandler(t)
	s := sanitize.NewRecordedTestSanitizer()

	assert.ErrorIs(t, h.AddSanitizer("nope", s), ErrSessionNotFound)
	assert.ErrorIs(t, h.AddTransform("nope", transform.NewClientIDTransform()), ErrSessionNotFound)
	assert.ErrorIs(t, h.SetMatcher("nope", matching.NewRecordMatcher()), ErrSessionNotFound)
	assert.ErrorIs(t, h.SetDefaultExtensions("nope"), ErrSessionNotFound)
	assert.ErrorIs(t, h.AddSanitizer("", nil), ErrInvalidRequest)
}

func TestSessionSanitizer_AppliedAfterDefaults(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "ordered", StorageFile)
	require.NoError(t, err)

	// Sees the value the default sanitizer wrote.
	s, err := sanitize.NewHeaderRegexSanitizer("Authorization", "^"+sanitize.SanitizedValue+"$", "Scrubbed", "")
	require.NoError(t, err)
	require.NoError(t, h.AddSanitizer(sid, s))

	req := proxiedRequest(http.MethodGet, "/x", "")
	req.Header.Set("Authorization", "Bearer token")
	original := req.Header.Clone()
	require.NoError(t, h.AddEntry(sid, req, nil, upstreamResponse(200, nil), nil))
	assert.Equal(t, original, req.Header)

	require.NoError(t, h.StopRecording(ctx, sid, nil))
	loaded, err := h.FileStorage().Load(ctx, "ordered")
	require.NoError(t, err)
	assert.Equal(t, "Scrubbed", loaded.Entries[0].Request.Headers.Get("Authorization"))
}

func TestVariables_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want map[string]string
	}{
		{name: "values", vars: map[string]string{"key1": "valueabc123", "key2": "value123abc"}, want: map[string]string{"key1": "valueabc123", "key2": "value123abc"}},
		{name: "nil", vars: nil, want: map[string]string{}},
		{name: "empty", vars: map[string]string{}, want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newTestHandler(t)

			sid, err := h.StartRecording(ctx, "vars", StorageFile)
			require.NoError(t, err)
			require.NoError(t, h.StopRecording(ctx, sid, tt.vars))

			data, err := os.ReadFile(h.FileStorage().Resolve("vars"))
			require.NoError(t, err)
			assert.Contains(t, string(data), `"variables"`)
			assert.NotContains(t, string(data), `"variables": null`)

			pid, err := h.StartPlayback(ctx, "vars", StorageFile)
			require.NoError(t, err)
			got, err := h.Variables(pid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariables_CopyIsDetached(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "detached", StorageFile)
	require.NoError(t, err)
	vars := map[string]string{"key1": "valueabc123"}
	require.NoError(t, h.StopRecording(ctx, sid, vars))
	vars["key1"] = "changed after stop"

	pid, err := h.StartPlayback(ctx, "detached", StorageFile)
	require.NoError(t, err)
	got, err := h.Variables(pid)
	require.NoError(t, err)
	got["key1"] = "changed by caller"

	again, err := h.Variables(pid)
	require.NoError(t, err)
	assert.Equal(t, "valueabc123", again["key1"])
}

func TestInMemory_PurgeAccounting(t *testing.T) {
	for _, purge := range []bool{true, false} {
		t.Run(fmt.Sprintf("purge=%v", purge), func(t *testing.T) {
			ctx := context.Background()
			h := newTestHandler(t)

			sid, err := h.StartRecording(ctx, "", StorageMemory)
			require.NoError(t, err)
			require.NoError(t, h.AddEntry(sid, proxiedRequest(http.MethodGet, "/m", ""), nil, upstreamResponse(200, nil), []byte("m")))
			require.NoError(t, h.StopRecording(ctx, sid, nil))
			assert.Equal(t, 1, h.InMemoryCount())

			pid, err := h.StartPlayback(ctx, sid, StorageMemory)
			require.NoError(t, err)
			got, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/m", ""), nil)
			require.NoError(t, err)
			assert.Equal(t, "m", string(got.Body))

			require.NoError(t, h.StopPlayback(pid, purge))
			if purge {
				assert.Equal(t, 0, h.InMemoryCount())
				_, err = h.StartPlayback(ctx, sid, StorageMemory)
				assert.ErrorIs(t, err, ErrRecordingNotFound)
			} else {
				assert.Equal(t, 1, h.InMemoryCount())
			}
		})
	}
}

func TestInMemory_PurgeIgnoredForFiles(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	record(t, h, "on-disk", "/a")

	pid, err := h.StartPlayback(ctx, "on-disk", StorageFile)
	require.NoError(t, err)
	require.NoError(t, h.StopPlayback(pid, true))

	_, err = os.Stat(h.FileStorage().Resolve("on-disk"))
	assert.NoError(t, err)
}

func TestPathResolution_Equivalent(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	record(t, h, "recordings/equivalent", "/a")

	for _, path := range []string{
		"recordings/equivalent",
		"recordings/equivalent.json",
		"recordings/../recordings/equivalent",
		filepath.Join(h.FileStorage().Root(), "recordings", "equivalent.json"),
	} {
		pid, err := h.StartPlayback(ctx, path, StorageFile)
		require.NoError(t, err, path)
		got, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/a", ""), nil)
		require.NoError(t, err, path)
		assert.Equal(t, "response 0", string(got.Body))
		require.NoError(t, h.StopPlayback(pid, false))
	}
}

func TestPathResolution_RecordRelativeAndAbsolute(t *testing.T) {
	relative := newTestHandler(t)
	absolute := newTestHandler(t)

	record(t, relative, "recordings/x", "/a", "/b")
	wantAbs := filepath.Join(absolute.FileStorage().Root(), "recordings", "x.json")
	record(t, absolute, wantAbs, "/a", "/b")

	wantRel := filepath.Join(relative.FileStorage().Root(), "recordings", "x.json")
	_, err := os.Stat(wantRel)
	require.NoError(t, err)
	_, err = os.Stat(wantAbs)
	require.NoError(t, err)

	relBytes, err := os.ReadFile(wantRel)
	require.NoError(t, err)
	absBytes, err := os.ReadFile(wantAbs)
	require.NoError(t, err)
	assert.Equal(t, string(relBytes), string(absBytes))
}

func TestStartPlayback_MissingRecording(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.StartPlayback(context.Background(), "does/not/exist.json", StorageFile)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordingNotFound)

	var nf *RecordingNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "does/not/exist.json", nf.Path)
	assert.Contains(t, err.Error(), "does/not/exist.json does not exist")

	missing := filepath.Join(t.TempDir(), "elsewhere", "gone.json")
	_, err = h.StartPlayback(context.Background(), missing, StorageFile)
	require.ErrorIs(t, err, ErrRecordingNotFound)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, missing, nf.Path)
	assert.Contains(t, err.Error(), missing)

	_, err = h.StartPlayback(context.Background(), "missing-id", StorageMemory)
	assert.ErrorIs(t, err, ErrRecordingNotFound)
	assert.Contains(t, err.Error(), "missing-id")
}

func TestStartRecording_FileRequiresPath(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.StartRecording(context.Background(), "", StorageFile)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLookupErrors(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	assert.ErrorIs(t, h.StopRecording(ctx, "unknown", nil), ErrSessionNotFound)
	assert.ErrorIs(t, h.StopPlayback("unknown", true), ErrSessionNotFound)
	assert.ErrorIs(t, h.AppendEntry("unknown", &recording.Entry{}), ErrSessionNotFound)
	_, err := h.Variables("unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.HandleRequest("unknown", proxiedRequest(http.MethodGet, "/", ""), nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sid, err := h.StartRecording(ctx, "twice", StorageFile)
	require.NoError(t, err)
	require.NoError(t, h.StopRecording(ctx, sid, nil))
	assert.ErrorIs(t, h.StopRecording(ctx, sid, nil), ErrSessionNotFound)

	// A recording id is not a playback id.
	sid, err = h.StartRecording(ctx, "kinds", StorageFile)
	require.NoError(t, err)
	assert.ErrorIs(t, h.StopPlayback(sid, false), ErrSessionNotFound)
}

func TestPlayback_SequentialConsumption(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	record(t, h, "seq", "/poll", "/poll", "/other")

	pid, err := h.StartPlayback(ctx, "seq", StorageFile)
	require.NoError(t, err)

	first, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/poll", ""), nil)
	require.NoError(t, err)
	second, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/poll", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "response 0", string(first.Body))
	assert.Equal(t, "response 1", string(second.Body))

	_, err = h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/poll", ""), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, matching.ErrNoMatch)
	var mm *matching.MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, http.MethodGet, mm.Method)
	assert.Equal(t, upstream+"/poll", mm.URI)

	infos := h.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].Entries)
	assert.Equal(t, 1, infos[0].Remaining)
}

func TestPlayback_ReuseConsumption(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, WithConsumption(ConsumeReuse))
	record(t, h, "reuse", "/poll", "/poll")

	pid, err := h.StartPlayback(ctx, "reuse", StorageFile)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/poll", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, "response 0", string(got.Body))
	}
}

func TestPlayback_TransformsApplied(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "transforms", StorageFile)
	require.NoError(t, err)
	req := proxiedRequest(http.MethodGet, "/t", "")
	req.Header.Set("X-Ms-Client-Request-Id", "recorded-id")
	req.Header.Set("Api-Version", "2024")
	resp := upstreamResponse(http.StatusServiceUnavailable, map[string]string{
		"X-Ms-Client-Request-Id": "recorded-id",
		"Retry-After":            "30",
		"Api-Version":            "2020",
	})
	require.NoError(t, h.AddEntry(sid, req, nil, resp, nil))
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	pid, err := h.StartPlayback(ctx, "transforms", StorageFile)
	require.NoError(t, err)
	require.NoError(t, h.AddTransform(pid, transform.NewAPIVersionTransform()))

	replay := proxiedRequest(http.MethodGet, "/t", "")
	replay.Header.Set("X-Ms-Client-Request-Id", "live-id")
	replay.Header.Set("Api-Version", "2024")
	got, err := h.HandleRequest(pid, replay, nil)
	require.NoError(t, err)
	assert.Equal(t, "live-id", got.Headers.Get("X-Ms-Client-Request-Id"))
	assert.Equal(t, "0", got.Headers.Get("Retry-After"))
	assert.Equal(t, "2024", got.Headers.Get("Api-Version"))

	// A second playback sees the recorded values again.
	pid2, err := h.StartPlayback(ctx, "transforms", StorageFile)
	require.NoError(t, err)
	replay = proxiedRequest(http.MethodGet, "/t", "")
	replay.Header.Set("Api-Version", "2024")
	got, err = h.HandleRequest(pid2, replay, nil)
	require.NoError(t, err)
	assert.Equal(t, "recorded-id", got.Headers.Get("X-Ms-Client-Request-Id"))
	assert.Equal(t, "2020", got.Headers.Get("Api-Version"))
}

func TestPlayback_SessionMatcher(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "bodies", StorageFile)
	require.NoError(t, err)
	req := proxiedRequest(http.MethodPost, "/q", "recorded body")
	require.NoError(t, h.AddEntry(sid, req, []byte("recorded body"), upstreamResponse(200, nil), []byte("ok")))
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	pid, err := h.StartPlayback(ctx, "bodies", StorageFile)
	require.NoError(t, err)

	_, err = h.HandleRequest(pid, proxiedRequest(http.MethodPost, "/q", "live body"), []byte("live body"))
	require.ErrorIs(t, err, matching.ErrNoMatch)

	require.NoError(t, h.SetMatcher(pid, matching.NewBodilessMatcher()))
	got, err := h.HandleRequest(pid, proxiedRequest(http.MethodPost, "/q", "live body"), []byte("live body"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got.Body))
}

func TestConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	const sessions = 20
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("concurrent/s%d", i)
			sid, err := h.StartRecording(ctx, path, StorageFile)
			if err != nil {
				errs <- err
				return
			}
			for j := 0; j < 5; j++ {
				req := proxiedRequest(http.MethodGet, fmt.Sprintf("/s%d/%d", i, j), "")
				if err := h.AddEntry(sid, req, nil, upstreamResponse(200, nil), []byte(fmt.Sprintf("%d-%d", i, j))); err != nil {
					errs <- err
					return
				}
			}
			if err := h.StopRecording(ctx, sid, map[string]string{"i": fmt.Sprint(i)}); err != nil {
				errs <- err
				return
			}

			pid, err := h.StartPlayback(ctx, path, StorageFile)
			if err != nil {
				errs <- err
				return
			}
			for j := 0; j < 5; j++ {
				got, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, fmt.Sprintf("/s%d/%d", i, j), ""), nil)
				if err != nil {
					errs <- err
					return
				}
				if string(got.Body) != fmt.Sprintf("%d-%d", i, j) {
					errs <- fmt.Errorf("session %d entry %d: got %q", i, j, got.Body)
					return
				}
			}
			errs <- h.StopPlayback(pid, false)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Empty(t, h.Sessions())
}

func TestConcurrentAppendsKeepEveryEntry(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	sid, err := h.StartRecording(ctx, "", StorageMemory)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.AddEntry(sid, proxiedRequest(http.MethodGet, fmt.Sprintf("/%d", i), ""), nil, upstreamResponse(200, nil), nil))
		}()
	}
	wg.Wait()
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	s, err := h.MemoryStorage().Load(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, s.Entries, 100)
}

func TestStopWhileInFlight(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	record(t, h, "inflight", "/a", "/a", "/a", "/a", "/a", "/a", "/a", "/a")

	pid, err := h.StartPlayback(ctx, "inflight", StorageFile)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/a", ""), nil)
			if err != nil {
				assert.ErrorIs(t, err, ErrSessionNotFound)
			}
		}()
	}
	require.NoError(t, h.StopPlayback(pid, false))
	wg.Wait()
}

func TestMetricsWiring(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	h := newTestHandler(t, WithMetrics(m))

	sid, err := h.StartRecording(ctx, "", StorageMemory)
	require.NoError(t, err)
	require.NoError(t, h.AddEntry(sid, proxiedRequest(http.MethodGet, "/m", ""), nil, upstreamResponse(200, nil), nil))
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	pid, err := h.StartPlayback(ctx, sid, StorageMemory)
	require.NoError(t, err)
	_, err = h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/m", ""), nil)
	require.NoError(t, err)
	_, err = h.HandleRequest(pid, proxiedRequest(http.MethodGet, "/m", ""), nil)
	require.Error(t, err)

	n, err := testutil.GatherAndCount(reg, "testproxy_playback_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = testutil.GatherAndCount(reg, "testproxy_memory_sessions")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, h.StopPlayback(pid, true))
}

func TestStopRecording_SaveFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	// A regular file where the recording's directory should be.
	blocker := filepath.Join(h.FileStorage().Root(), "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	sid, err := h.StartRecording(ctx, "blocked/session", StorageFile)
	require.NoError(t, err)
	require.NoError(t, h.AddEntry(sid, proxiedRequest(http.MethodGet, "/a", ""), nil, upstreamResponse(200, nil), nil))

	err = h.StopRecording(ctx, sid, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	infos := h.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, sid, infos[0].ID)
	assert.Equal(t, 1, infos[0].Entries)

	// Still writable after the failed stop.
	require.NoError(t, h.AddEntry(sid, proxiedRequest(http.MethodGet, "/b", ""), nil, upstreamResponse(200, nil), nil))
	require.NoError(t, os.Remove(blocker))
	require.NoError(t, h.StopRecording(ctx, sid, nil))

	loaded, err := h.FileStorage().Load(ctx, "blocked/session")
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 2)
}
