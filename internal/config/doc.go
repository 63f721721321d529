// Package config loads, normalizes, and validates syndicate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SYNDICATE_API_TOKEN and SYNDICATE_JWT_SECRET. The Config type centralizes
// every knob the daemon and CLI need so data, inbox, and outbox directories,
// delivery limits, and event settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
