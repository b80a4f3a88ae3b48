// Package matching pairs incoming playback requests with recorded entries.
//
// A Matcher compares an incoming request with one recorded request field by
// field and reports a FieldResult per field. A candidate matches when every
// field matched. FindMatch scans a session's entries in recording order and
// returns the first available match; when nothing matches it returns a
// *MismatchError that carries the closest candidate as a NearMiss.
//
// Field weights used to rank near misses are defined in scores.go.
package matching
