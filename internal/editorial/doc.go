// Package editorial owns the entry lifecycle: status transitions, editorial
// checks, Q membership, and the fan-out of newly published entries to buyer
// transmission queues.
package editorial
