// Package logstream follows the broker log file.
//
// Follow tails a file with polling and reopens it after rotation. The
// session tracker follows from the current end so that history is never
// replayed; the Streamer follows from the beginning to feed the dashboard
// log view. RecentLines serves one-shot requests for the tail of the file.
package logstream
