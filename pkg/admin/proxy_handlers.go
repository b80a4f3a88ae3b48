package admin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/testproxy/pkg/httputil"
	"github.com/getmockd/testproxy/pkg/proxy"
	"github.com/getmockd/testproxy/pkg/recording"
)

// Values of the x-recording-mode header.
const (
	ModeRecord   = "record"
	ModePlayback = "playback"
)

// hopByHopHeaders are never forwarded or replayed.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// handleProxy serves every request that is not a control route.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	mode, err := proxy.GetHeader(r, recording.HeaderRecordingMode, false)
	if err != nil {
		writeProxyError(w, s.log, "proxy request", err)
		return
	}
	sid, err := proxy.GetHeader(r, recording.HeaderRecordingID, false)
	if err != nil {
		writeProxyError(w, s.log, "proxy request", err)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, err.Error())
		return
	}

	switch strings.ToLower(mode) {
	case ModeRecord:
		s.record(w, r, sid, body)
	case ModePlayback:
		s.playback(w, r, sid, body)
	default:
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, fmt.Sprintf("unknown %s %q", recording.HeaderRecordingMode, mode))
	}
}

// readBody buffers the request body. An absent or empty body is nil.
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading request body: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", s.maxBodyBytes)
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// record forwards the request upstream, captures the exchange into the
// session and relays the live response.
func (s *Server) record(w http.ResponseWriter, r *http.Request, sid string, body []byte) {
	start := time.Now()

	resp, err := s.forwardRequest(r, body)
	if err != nil {
		if isClientError(err) {
			writeProxyError(w, s.log, "record request", err)
			return
		}
		s.log.Warn("upstream request failed", "session_id", sid, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, ErrCodeUpstream, "error forwarding request: "+err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes+1))
	if err != nil {
		httputil.WriteError(w, http.StatusBadGateway, ErrCodeUpstream, "error reading response: "+err.Error())
		return
	}
	if int64(len(respBody)) > s.maxBodyBytes {
		s.log.Warn("upstream response too large", "session_id", sid, "limit", s.maxBodyBytes)
		httputil.WriteError(w, http.StatusBadGateway, ErrCodeUpstream,
			fmt.Sprintf("upstream response body exceeds %d bytes", s.maxBodyBytes))
		return
	}
	if len(respBody) == 0 {
		respBody = nil
	}

	if err := s.handler.AddEntry(sid, r, body, resp, respBody); err != nil {
		writeProxyError(w, s.log, "record request", err)
		return
	}

	s.log.Debug("recorded", "session_id", sid, "method", r.Method, "path", r.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))
	writeResponse(w, resp.StatusCode, resp.Header, respBody)
}

// playback answers the request from the session's recording.
func (s *Server) playback(w http.ResponseWriter, r *http.Request, sid string, body []byte) {
	resp, err := s.handler.HandleRequest(sid, r, body)
	if err != nil {
		writeProxyError(w, s.log, "playback request", err)
		return
	}
	writeResponse(w, resp.StatusCode, resp.Headers, resp.Body)
}

// forwardRequest sends the request to the upstream named by
// x-recording-upstream-base-uri. Control headers are not forwarded.
func (s *Server) forwardRequest(r *http.Request, body []byte) (*http.Response, error) {
	if r.Header.Get(recording.HeaderUpstreamBaseURI) == "" {
		return nil, &proxy.HeaderError{Name: recording.HeaderUpstreamBaseURI}
	}
	target, err := recording.RequestURI(r)
	if err != nil {
		return nil, invalidRequest(err)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, invalidRequest(err)
	}
	if body == nil {
		outReq.Body = http.NoBody
		outReq.ContentLength = 0
	}

	copyHeaders(outReq.Header, r.Header)
	removeHopByHopHeaders(outReq.Header)
	outReq.Header.Del("Content-Length")

	return s.client.Do(outReq)
}

// copyHeaders copies headers from src to dst, skipping proxy control headers.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if recording.IsControlHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

// writeResponse relays a live or replayed response. The length is
// recomputed from body.
func writeResponse(w http.ResponseWriter, status int, headers http.Header, body []byte) {
	copyHeaders(w.Header(), headers)
	removeHopByHopHeaders(w.Header())
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func isClientError(err error) bool {
	return errors.Is(err, proxy.ErrHeaderRequired) || errors.Is(err, proxy.ErrInvalidRequest)
}
