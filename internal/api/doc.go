// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates store models into transport-friendly DTOs so the
// CLI and buyer integrations can render queues without coupling to internal
// types.
//
// # Key Types
//
// Queue: a transmission queue with its buyer slug and schedule.
//
// Item: one queue item joined with its entry title and publication slug.
//
// StatusCount: one row of the transmission status report.
//
// Entry and EntityGroup: an editorial entry and its grouped entity tags.
//
// DaemonStatus: running state, workflow summary, and preflight results.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Actions are exposed both as their single
// letter code and their lowercase name. Timestamps use RFC3339 with
// milliseconds.
package api
