// Package metrics provides Prometheus collectors for the test proxy.
//
// Collectors are registered on a caller-supplied prometheus.Registerer so
// tests and embedded uses can keep them off the global registry.
//
//   - testproxy_sessions_active: Gauge of open sessions (labels: kind)
//   - testproxy_memory_sessions: Gauge of stored in-memory recordings
//   - testproxy_entries_recorded_total: Counter of entries appended to recordings
//   - testproxy_playback_requests_total: Counter of playback requests (labels: result)
//
// # Label Conventions
//
//   - kind: record, playback
//   - result: match, miss
package metrics
