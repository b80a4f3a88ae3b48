package recording

import "errors"

// Errors returned while reading recording documents.
var (
	ErrCorrupted       = errors.New("recording file corrupted")
	ErrInvalidEncoding = errors.New("invalid body encoding")
)

// DataEncoding indicates how a body is stored in a recording document.
type DataEncoding string

const (
	DataEncodingUTF8   DataEncoding = "utf8"
	DataEncodingBase64 DataEncoding = "base64"
)

// FormatVersion is the current recording document version.
const FormatVersion = "1.0"

// DefaultExtension is appended to recording paths that have none.
const DefaultExtension = ".json"
