package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"syndicate/internal/transmission"
)

// SaveUploadLocation inserts a location or updates the one with the same
// queue and target.
func (s *Store) SaveUploadLocation(ctx context.Context, loc *transmission.UploadLocation) error {
	if loc == nil || strings.TrimSpace(loc.Location) == "" {
		return errors.New("upload location is required")
	}
	if loc.Kind == "" {
		loc.Kind = transmission.LocationOther
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO upload_locations (queue_id, kind, location, active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(queue_id, location) DO UPDATE SET kind = excluded.kind, active = excluded.active`,
		loc.QueueID, string(loc.Kind), loc.Location, boolToInt(loc.Active))
	if err != nil {
		return fmt.Errorf("save upload location: %w", err)
	}
	return s.db.QueryRowContext(ensureContext(ctx),
		"SELECT id FROM upload_locations WHERE queue_id = ? AND location = ?", loc.QueueID, loc.Location).Scan(&loc.ID)
}

// UploadLocationsFor lists the active upload locations of a queue.
func (s *Store) UploadLocationsFor(ctx context.Context, queueID int64) ([]transmission.UploadLocation, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT id, queue_id, kind, location, active FROM upload_locations WHERE queue_id = ? AND active = 1 ORDER BY id",
		queueID)
	if err != nil {
		return nil, fmt.Errorf("list upload locations: %w", err)
	}
	defer rows.Close()
	var out []transmission.UploadLocation
	for rows.Next() {
		var (
			loc    transmission.UploadLocation
			kind   string
			active int
		)
		if err := rows.Scan(&loc.ID, &loc.QueueID, &kind, &loc.Location, &active); err != nil {
			return nil, err
		}
		loc.Kind = transmission.LocationKind(kind)
		loc.Active = active != 0
		out = append(out, loc)
	}
	return out, rows.Err()
}
