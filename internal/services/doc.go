// Package services defines shared utilities consumed by the editorial,
// tagging, and transmission services.
//
// Key responsibilities:
//   - Context helpers that stamp queue IDs, entry IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (validation vs transient) without string matching.
//
// Use these helpers when wiring new service logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
