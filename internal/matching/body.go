package matching

import "bytes"

// BodiesEqual compares bodies byte for byte. A missing body equals an empty
// one.
func BodiesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
