// Package id generates session identifiers for the test proxy.
//
// A session id is a UUID v4 handed to clients in the x-recording-id header.
// Ids must be unique across the recording, playback and in-memory stores
// for the lifetime of the process. The recording handler draws again on a
// collision.
package id
