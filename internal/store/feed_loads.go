package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeedLoadStatus tracks an inbox file through ingestion.
type FeedLoadStatus string

const (
	FeedAccepted   FeedLoadStatus = "A"
	FeedProcessing FeedLoadStatus = "P"
	FeedSuccess    FeedLoadStatus = "S"
	FeedRejected   FeedLoadStatus = "R"
	FeedDuplicate  FeedLoadStatus = "D"
)

// FeedLoad is one inbox file ingestion attempt.
type FeedLoad struct {
	ID              int64
	FileName        string
	Checksum        string
	Status          FeedLoadStatus
	PublicationID   int64
	EntriesLoaded   int
	EntriesRejected int
	Message         string
	CreatedOn       time.Time
	UpdatedOn       time.Time
}

const feedLoadColumns = "id, file_name, checksum, status, publication_id, entries_loaded, entries_rejected, message, created_on, updated_on"

func scanFeedLoad(row scanner) (*FeedLoad, error) {
	var (
		f       FeedLoad
		status  string
		pubID   sql.NullInt64
		message sql.NullString
		created string
		updated string
	)
	if err := row.Scan(&f.ID, &f.FileName, &f.Checksum, &status, &pubID, &f.EntriesLoaded, &f.EntriesRejected,
		&message, &created, &updated); err != nil {
		return nil, err
	}
	f.Status = FeedLoadStatus(status)
	f.PublicationID = pubID.Int64
	f.Message = message.String
	f.CreatedOn, _ = parseTimeString(created)
	f.UpdatedOn, _ = parseTimeString(updated)
	return &f, nil
}

// RecordFeedLoad inserts a new load (ID zero) or updates its status and counts.
func (s *Store) RecordFeedLoad(ctx context.Context, f *FeedLoad) error {
	if f == nil {
		return errors.New("feed load is nil")
	}
	now := time.Now().UTC()
	if f.CreatedOn.IsZero() {
		f.CreatedOn = now
	}
	f.UpdatedOn = now
	if f.ID == 0 {
		res, err := s.execWithRetry(ctx,
			`INSERT INTO feed_loads (file_name, checksum, status, publication_id, entries_loaded, entries_rejected, message, created_on, updated_on)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.FileName, f.Checksum, string(f.Status), nullableID(&f.PublicationID), f.EntriesLoaded, f.EntriesRejected,
			nullableString(f.Message), formatTime(f.CreatedOn), formatTime(f.UpdatedOn))
		if err != nil {
			return fmt.Errorf("insert feed load: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("feed load id: %w", err)
		}
		f.ID = id
		return nil
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE feed_loads SET status = ?, publication_id = ?, entries_loaded = ?, entries_rejected = ?, message = ?, updated_on = ?
		 WHERE id = ?`,
		string(f.Status), nullableID(&f.PublicationID), f.EntriesLoaded, f.EntriesRejected, nullableString(f.Message),
		formatTime(f.UpdatedOn), f.ID)
	if err != nil {
		return fmt.Errorf("update feed load: %w", err)
	}
	return requireAffected(res, "feed load", f.ID)
}

// FeedLoadByChecksum returns the successful load of an identical file, if any.
func (s *Store) FeedLoadByChecksum(ctx context.Context, checksum string) (*FeedLoad, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+feedLoadColumns+" FROM feed_loads WHERE checksum = ? AND status = ? ORDER BY id LIMIT 1",
		checksum, string(FeedSuccess))
	return notFound(scanFeedLoad(row))
}

// ListFeedLoads returns the most recent loads first.
func (s *Store) ListFeedLoads(ctx context.Context, limit int) ([]FeedLoad, error) {
	query := "SELECT " + feedLoadColumns + " FROM feed_loads ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list feed loads: %w", err)
	}
	defer rows.Close()
	var out []FeedLoad
	for rows.Next() {
		f, err := scanFeedLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}
