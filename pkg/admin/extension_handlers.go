package admin

import (
	"net/http"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/httputil"
	"github.com/getmockd/testproxy/pkg/proxy"
	"github.com/getmockd/testproxy/pkg/recording"
	"github.com/getmockd/testproxy/pkg/sanitize"
	"github.com/getmockd/testproxy/pkg/transform"
)

// ExtensionResponse acknowledges an extension registration.
type ExtensionResponse struct {
	Type        string `json:"type"`
	RecordingID string `json:"recordingId,omitempty"`
}

// extensionTarget reads the optional session id and the required extension
// type, then decodes the body into spec.
func (s *Server) extensionTarget(w http.ResponseWriter, r *http.Request, spec any) (sid, typ string, err error) {
	sid, _ = proxy.GetHeader(r, recording.HeaderRecordingID, true)
	typ, err = proxy.GetHeader(r, recording.HeaderAbstractionIdentifier, false)
	if err != nil {
		return "", "", err
	}
	if err := httputil.DecodeJSON(w, r, s.maxBodyBytes, spec); err != nil {
		return "", "", invalidRequest(err)
	}
	return sid, typ, nil
}

// handleAddSanitizer handles POST /admin/addsanitizer.
func (s *Server) handleAddSanitizer(w http.ResponseWriter, r *http.Request) {
	var spec sanitize.Spec
	sid, typ, err := s.extensionTarget(w, r, &spec)
	if err != nil {
		writeProxyError(w, s.log, "add sanitizer", err)
		return
	}
	spec.Type = typ

	san, err := sanitize.Build(spec)
	if err != nil {
		writeProxyError(w, s.log, "add sanitizer", invalidRequest(err))
		return
	}
	if err := s.handler.AddSanitizer(sid, san); err != nil {
		writeProxyError(w, s.log, "add sanitizer", err)
		return
	}

	s.log.Info("sanitizer added", "type", typ, "session_id", sid)
	httputil.WriteOK(w, ExtensionResponse{Type: typ, RecordingID: sid})
}

// handleAddTransform handles POST /admin/addtransform.
func (s *Server) handleAddTransform(w http.ResponseWriter, r *http.Request) {
	var spec transform.Spec
	sid, typ, err := s.extensionTarget(w, r, &spec)
	if err != nil {
		writeProxyError(w, s.log, "add transform", err)
		return
	}
	spec.Type = typ

	t, err := transform.Build(spec)
	if err != nil {
		writeProxyError(w, s.log, "add transform", invalidRequest(err))
		return
	}
	if err := s.handler.AddTransform(sid, t); err != nil {
		writeProxyError(w, s.log, "add transform", err)
		return
	}

	s.log.Info("transform added", "type", typ, "session_id", sid)
	httputil.WriteOK(w, ExtensionResponse{Type: typ, RecordingID: sid})
}

// handleSetMatcher handles POST /admin/setmatcher.
func (s *Server) handleSetMatcher(w http.ResponseWriter, r *http.Request) {
	var spec matching.Spec
	sid, typ, err := s.extensionTarget(w, r, &spec)
	if err != nil {
		writeProxyError(w, s.log, "set matcher", err)
		return
	}
	spec.Type = typ

	m, err := matching.Build(spec)
	if err != nil {
		writeProxyError(w, s.log, "set matcher", invalidRequest(err))
		return
	}
	if err := s.handler.SetMatcher(sid, m); err != nil {
		writeProxyError(w, s.log, "set matcher", err)
		return
	}

	s.log.Info("matcher set", "type", typ, "session_id", sid)
	httputil.WriteOK(w, ExtensionResponse{Type: m.Name(), RecordingID: sid})
}

// handleReset handles POST /admin/reset. Without x-recording-id the
// defaults are restored; with it only that session's overrides are cleared.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sid, _ := proxy.GetHeader(r, recording.HeaderRecordingID, true)
	if err := s.handler.SetDefaultExtensions(sid); err != nil {
		writeProxyError(w, s.log, "reset extensions", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
