package recording

// Header names that make up the protocol between test clients and the proxy.
const (
	// HeaderRecordingID carries the session id on every exchange once a
	// session has been started.
	HeaderRecordingID = "x-recording-id"

	// HeaderUpstreamBaseURI carries the origin used to rebuild an entry's
	// absolute request URI.
	HeaderUpstreamBaseURI = "x-recording-upstream-base-uri"

	// HeaderRecordingMode selects record or playback handling for a proxied request.
	HeaderRecordingMode = "x-recording-mode"

	// HeaderRecordingFile names the recording file on start operations.
	HeaderRecordingFile = "x-recording-file"

	// HeaderRecordingStorage selects "memory" storage on start operations.
	HeaderRecordingStorage = "x-recording-storage"

	// HeaderPurgeInMemory asks StopPlayback to purge an in-memory recording.
	HeaderPurgeInMemory = "x-purge-inmemory-recording"

	// HeaderAbstractionIdentifier names the sanitizer, transform or matcher
	// type on admin registration calls.
	HeaderAbstractionIdentifier = "x-abstraction-identifier"
)

const controlHeaderPrefix = "x-recording-"
