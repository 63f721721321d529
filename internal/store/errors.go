package store

import (
	"errors"
	"fmt"
	"strings"

	"syndicate/internal/services"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = fmt.Errorf("%w: record not found", services.ErrNotFound)
	// ErrDuplicateSlug rejects a second published entry with the same slug in a publication.
	ErrDuplicateSlug = fmt.Errorf("%w: slug already published in this publication", services.ErrConflict)
	// ErrConflict wraps unique constraint violations.
	ErrConflict = fmt.Errorf("%w: record already exists", services.ErrConflict)
	// ErrInvalidOwner rejects publications owned by buyers and queues owned by providers.
	ErrInvalidOwner = fmt.Errorf("%w: account kind does not allow this record", services.ErrValidation)
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func conflictError(what string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
