package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	KindRecord   = "record"
	KindPlayback = "playback"

	ResultMatch = "match"
	ResultMiss  = "miss"
)

// Metrics holds the proxy's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	sessionsActive   *prometheus.GaugeVec
	memorySessions   prometheus.Gauge
	entriesRecorded  prometheus.Counter
	playbackRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "testproxy_sessions_active",
				Help: "Number of open recording and playback sessions",
			},
			[]string{"kind"},
		),
		memorySessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "testproxy_memory_sessions",
				Help: "Number of recordings held in memory",
			},
		),
		entriesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "testproxy_entries_recorded_total",
				Help: "Total entries appended to recording sessions",
			},
		),
		playbackRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testproxy_playback_requests_total",
				Help: "Total playback requests by match result",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{m.sessionsActive, m.memorySessions, m.entriesRecorded, m.playbackRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SessionStarted increments the open session gauge for kind.
func (m *Metrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Inc()
}

// SessionStopped decrements the open session gauge for kind.
func (m *Metrics) SessionStopped(kind string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Dec()
}

// SetMemorySessions records the number of stored in-memory recordings.
func (m *Metrics) SetMemorySessions(n int) {
	if m == nil {
		return
	}
	m.memorySessions.Set(float64(n))
}

// EntryRecorded counts one appended entry.
func (m *Metrics) EntryRecorded() {
	if m == nil {
		return
	}
	m.entriesRecorded.Inc()
}

// PlaybackRequest counts one playback request with its result.
func (m *Metrics) PlaybackRequest(result string) {
	if m == nil {
		return
	}
	m.playbackRequests.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
