package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] upgrades a database from version i to i+1. Append only.
var migrations = []string{
	baseSchema,
	`CREATE INDEX idx_entries_publication_pub_date ON entries(publication_id, pub_date);
	 CREATE INDEX idx_transmission_items_batch ON transmission_items(transmission_id);`,
	`ALTER TABLE transmission_queues ADD COLUMN last_transmitted_on TEXT;`,
}

// SchemaVersion is the version a freshly migrated database reports.
func SchemaVersion() int { return len(migrations) }

// migrate applies every migration newer than the recorded version in one
// transaction. Databases from a newer build are refused.
func (s *Store) migrate(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := recordedVersion(ctx, tx)
		if err != nil {
			return err
		}
		if current > len(migrations) {
			return fmt.Errorf("%w: database has version %d, this build knows %d (upgrade syndicate)",
				ErrSchemaMismatch, current, len(migrations))
		}
		for v := current; v < len(migrations); v++ {
			if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
				return fmt.Errorf("migrate to version %d: %w", v+1, err)
			}
		}
		if current == len(migrations) {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
			return fmt.Errorf("clear schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", len(migrations)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

// recordedVersion returns 0 for an empty database.
func recordedVersion(ctx context.Context, q querier) (int, error) {
	var tables int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
