// Package logs reads the daemon's log file for operators.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait briefly for new output. When the daemon logs in JSON, lines can be
// narrowed to one transmission queue, correlation id, or minimum level.
package logs
