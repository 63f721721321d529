// Package preflight provides readiness checks for the filesystem paths and
// external services syndicate depends on.
//
// The daemon calls RunAll at startup and refuses to start the workflow loop
// when a required check fails. The CLI "syndicate status" command uses the
// individual checks to render service health.
//
// Each external check is gated by its config toggle; disabled features are
// reported as skipped rather than failed.
package preflight
