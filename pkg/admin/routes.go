package admin

import "net/http"

// registerRoutes sets up the control routes. Anything else is proxied.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Session lifecycle
	mux.HandleFunc("POST /record/start", s.handleRecordStart)
	mux.HandleFunc("POST /record/stop", s.handleRecordStop)
	mux.HandleFunc("POST /playback/start", s.handlePlaybackStart)
	mux.HandleFunc("POST /playback/stop", s.handlePlaybackStop)

	// Extensions
	mux.HandleFunc("POST /admin/addsanitizer", s.handleAddSanitizer)
	mux.HandleFunc("POST /admin/addtransform", s.handleAddTransform)
	mux.HandleFunc("POST /admin/setmatcher", s.handleSetMatcher)
	mux.HandleFunc("POST /admin/reset", s.handleReset)
	mux.HandleFunc("GET /admin/sessions", s.handleListSessions)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("/", s.handleProxy)
}
