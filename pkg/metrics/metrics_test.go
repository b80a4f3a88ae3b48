package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SessionStarted(KindRecord)
	m.SessionStarted(KindRecord)
	m.SessionStopped(KindRecord)
	m.SessionStarted(KindPlayback)
	m.SetMemorySessions(3)
	m.EntryRecorded()
	m.EntryRecorded()
	m.PlaybackRequest(ResultMatch)
	m.PlaybackRequest(ResultMiss)
	m.PlaybackRequest(ResultMiss)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive.WithLabelValues(KindRecord)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive.WithLabelValues(KindPlayback)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.memorySessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entriesRecorded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.playbackRequests.WithLabelValues(ResultMiss)))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted(KindRecord)
		m.SessionStopped(KindRecord)
		m.SetMemorySessions(1)
		m.EntryRecorded()
		m.PlaybackRequest(ResultMatch)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.EntryRecorded()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "testproxy_entries_recorded_total 1")
}
