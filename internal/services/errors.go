package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrTransient     = errors.New("transient failure")
)

// classes is checked in order; anything unmatched is transient.
var classes = []struct {
	marker error
	label  string
}{
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
}

// Wrap tags err with marker (ErrTransient when nil) and prefixes it with the
// non-blank parts of stage, operation, and message, e.g.
// "transient failure: transmit: upload: queue wire: <err>".
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := joinDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// Classify returns a short label for the marker carried by err, or "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.marker) {
			return c.label
		}
	}
	return "transient"
}

// Retryable reports whether a later attempt may succeed without operator action.
func Retryable(err error) bool {
	return Classify(err) == "transient"
}

func joinDetail(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
