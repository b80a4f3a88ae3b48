package admin

import (
	"net/http"
	"strconv"

	"github.com/getmockd/testproxy/pkg/httputil"
	"github.com/getmockd/testproxy/pkg/proxy"
	"github.com/getmockd/testproxy/pkg/recording"
)

// StartResponse is returned by the start endpoints of a recording session.
type StartResponse struct {
	RecordingID string `json:"recordingId"`
}

// startTarget reads the storage mode and recording path of a start call.
// The path comes from x-recording-file or, failing that, from a JSON body
// of the form {"x-recording-file": "..."}.
func (s *Server) startTarget(w http.ResponseWriter, r *http.Request) (string, proxy.StorageMode, error) {
	storage, err := proxy.ParseStorageMode(r.Header.Get(recording.HeaderRecordingStorage))
	if err != nil {
		return "", "", err
	}

	path := r.Header.Get(recording.HeaderRecordingFile)
	if path == "" {
		var body map[string]string
		if err := httputil.DecodeJSON(w, r, s.maxBodyBytes, &body); err != nil {
			return "", "", invalidRequest(err)
		}
		path = body[recording.HeaderRecordingFile]
	}
	return path, storage, nil
}

// handleRecordStart handles POST /record/start.
func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	path, storage, err := s.startTarget(w, r)
	if err != nil {
		writeProxyError(w, s.log, "start recording", err)
		return
	}
	if path == "" && storage == proxy.StorageFile {
		writeProxyError(w, s.log, "start recording", &proxy.HeaderError{Name: recording.HeaderRecordingFile})
		return
	}

	sid, err := s.handler.StartRecording(r.Context(), path, storage)
	if err != nil {
		writeProxyError(w, s.log, "start recording", err)
		return
	}

	w.Header().Set(recording.HeaderRecordingID, sid)
	httputil.WriteOK(w, StartResponse{RecordingID: sid})
}

// handleRecordStop handles POST /record/stop. The body, when present, is the
// variable map to persist.
func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	sid, err := proxy.GetHeader(r, recording.HeaderRecordingID, false)
	if err != nil {
		writeProxyError(w, s.log, "stop recording", err)
		return
	}

	var variables map[string]string
	if err := httputil.DecodeJSON(w, r, s.maxBodyBytes, &variables); err != nil {
		writeProxyError(w, s.log, "stop recording", invalidRequest(err))
		return
	}

	if err := s.handler.StopRecording(r.Context(), sid, variables); err != nil {
		writeProxyError(w, s.log, "stop recording", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handlePlaybackStart handles POST /playback/start. An in-memory playback
// may name its recording by x-recording-id instead of x-recording-file.
func (s *Server) handlePlaybackStart(w http.ResponseWriter, r *http.Request) {
	path, storage, err := s.startTarget(w, r)
	if err != nil {
		writeProxyError(w, s.log, "start playback", err)
		return
	}
	if path == "" && storage == proxy.StorageMemory {
		path = r.Header.Get(recording.HeaderRecordingID)
	}
	if path == "" {
		writeProxyError(w, s.log, "start playback", &proxy.HeaderError{Name: recording.HeaderRecordingFile})
		return
	}

	sid, err := s.handler.StartPlayback(r.Context(), path, storage)
	if err != nil {
		writeProxyError(w, s.log, "start playback", err)
		return
	}

	variables, err := s.handler.Variables(sid)
	if err != nil {
		writeProxyError(w, s.log, "start playback", err)
		return
	}

	w.Header().Set(recording.HeaderRecordingID, sid)
	httputil.WriteOK(w, variables)
}

// handlePlaybackStop handles POST /playback/stop.
func (s *Server) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	sid, err := proxy.GetHeader(r, recording.HeaderRecordingID, false)
	if err != nil {
		writeProxyError(w, s.log, "stop playback", err)
		return
	}

	purge := false
	if v := r.Header.Get(recording.HeaderPurgeInMemory); v != "" {
		purge, err = strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, ErrCodeInvalidRequest, "invalid "+recording.HeaderPurgeInMemory+" value "+strconv.Quote(v))
			return
		}
	}

	if err := s.handler.StopPlayback(sid, purge); err != nil {
		writeProxyError(w, s.log, "stop playback", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleListSessions handles GET /admin/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, s.handler.Sessions())
}
