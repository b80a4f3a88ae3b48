// Package admin is the HTTP surface of the test proxy.
//
// Control endpoints start and stop sessions and register extensions:
//
//	POST /record/start        - Start recording (x-recording-file, x-recording-storage)
//	POST /record/stop         - Stop recording; the JSON body is the variable map
//	POST /playback/start      - Start playback; replies with the recorded variables
//	POST /playback/stop       - Stop playback (x-purge-inmemory-recording)
//	POST /admin/addsanitizer  - Register a sanitizer (x-abstraction-identifier)
//	POST /admin/addtransform  - Register a transform
//	POST /admin/setmatcher    - Replace the matcher
//	POST /admin/reset         - Restore defaults, or clear one session's overrides
//	GET  /admin/sessions      - List active sessions
//	GET  /metrics             - Prometheus metrics
//
// Every other request is proxied. With x-recording-mode: record the request
// is forwarded to x-recording-upstream-base-uri and the exchange is captured;
// with x-recording-mode: playback the recorded response is replayed.
//
// Admin extension calls without x-recording-id change the process-wide
// defaults; with it they change only that session.
package admin
