// Package notifications pushes operator alerts to ntfy.
//
// Transmission summaries, feed rejections, and daemon errors share one small
// Service interface. When no topic is configured NewService returns a no-op so
// callers never need to nil-check.
package notifications
