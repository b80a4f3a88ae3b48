package proxy

import (
	"log/slog"

	"github.com/getmockd/testproxy/pkg/metrics"
	"github.com/getmockd/testproxy/pkg/store"
)

// Option configures a RecordingHandler.
type Option func(*RecordingHandler)

// WithLogger sets the logger. Nil means logging.Nop().
func WithLogger(l *slog.Logger) Option {
	return func(h *RecordingHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *RecordingHandler) {
		h.metrics = m
	}
}

// WithConsumption sets how playback treats entries that already matched.
func WithConsumption(c Consumption) Option {
	return func(h *RecordingHandler) {
		h.consumption = c
	}
}

// WithMemoryStorage shares an in-memory store, for example one that was
// preloaded at startup.
func WithMemoryStorage(m *store.MemoryStorage) Option {
	return func(h *RecordingHandler) {
		if m != nil {
			h.memory = m
		}
	}
}

// WithExtensions sets the default extensions object.
func WithExtensions(e *Extensions) Option {
	return func(h *RecordingHandler) {
		if e != nil {
			h.ext = e
		}
	}
}
