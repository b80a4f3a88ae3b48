package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getmockd/testproxy/internal/matching"
	"github.com/getmockd/testproxy/pkg/httputil"
	"github.com/getmockd/testproxy/pkg/proxy"
)

// Error codes returned in the "error" field of error replies.
const (
	ErrCodeSessionNotFound   = "session_not_found"
	ErrCodeRecordingNotFound = "recording_not_found"
	ErrCodeHeaderRequired    = "header_required"
	ErrCodeNoMatch           = "no_match"
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeUpstream          = "upstream_error"
	ErrCodeInternal          = "internal_error"
)

// ErrMsgInternalError is returned for unexpected internal errors. The full
// error is only logged.
const ErrMsgInternalError = "An internal error occurred"

// writeProxyError maps a handler error to a status code and writes it.
// Known errors carry their own message since it names the session, file or
// header the caller got wrong.
func writeProxyError(w http.ResponseWriter, log *slog.Logger, operation string, err error) {
	switch {
	case errors.Is(err, proxy.ErrSessionNotFound):
		httputil.WriteNotFound(w, ErrCodeSessionNotFound, err.Error())
	case errors.Is(err, proxy.ErrRecordingNotFound):
		httputil.WriteNotFound(w, ErrCodeRecordingNotFound, err.Error())
	case errors.Is(err, proxy.ErrHeaderRequired):
		httputil.WriteBadRequest(w, ErrCodeHeaderRequired, err.Error())
	case errors.Is(err, matching.ErrNoMatch):
		httputil.WriteNotFound(w, ErrCodeNoMatch, err.Error())
	case errors.Is(err, proxy.ErrInvalidRequest):
		httputil.WriteBadRequest(w, ErrCodeInvalidRequest, err.Error())
	default:
		log.Error("operation failed", "operation", operation, "error", err)
		httputil.WriteInternalError(w, ErrCodeInternal, ErrMsgInternalError)
	}
}

// invalidRequest marks err as a client error.
func invalidRequest(err error) error {
	return fmt.Errorf("%w: %v", proxy.ErrInvalidRequest, err)
}
