// Package logging builds the slog loggers shared by syndicated and the CLI.
//
// Output is either a single-line console layout or JSON (one object per
// line, the format logs.Tail filters on). Every handler is wrapped so that
// credentials never reach disk: attributes named like passwords, secrets, or
// tokens are masked, and URLs lose the password part of their userinfo.
// WithContext copies queue, entry, stage, and correlation identifiers from a
// request context onto a logger.
package logging
