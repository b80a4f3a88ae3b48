package id

import "github.com/google/uuid"

// Session generates a new session identifier (UUID v4).
func Session() string {
	return uuid.NewString()
}
