// Package transmission owns per-buyer transmission queues: the refresh that
// pulls entries from subscribed publications and Qs, manual additions, action
// changes, delivery of scheduled items, and status reporting.
//
// A transmission queue item is unique per (queue, entry). Refresh only ever
// creates items; it never rewrites the action of an existing one, so running
// it twice is harmless. The watermark (UpdatedOn) advances to the start of the
// current day after every refresh.
package transmission
