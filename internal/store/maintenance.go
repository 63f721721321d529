package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// countedTables are reported by Stats in this order.
var countedTables = []string{
	"accounts",
	"publications",
	"entries",
	"entities",
	"qs",
	"transmission_queues",
	"transmission_items",
	"feed_loads",
}

// DatabaseHealth describes database diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   string
	Error            string
}

// Stats returns row counts per table.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	ctx = ensureContext(ctx)
	stats := make(map[string]int, len(countedTables))
	for _, table := range countedTables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

// PendingByAction counts transmission items per action across all queues.
func (s *Store) PendingByAction(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT action, COUNT(1) FROM transmission_items GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			action string
			count  int
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		out[action] = count
	}
	return out, rows.Err()
}

// Health returns diagnostic information about the database.
func (s *Store) Health(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	if health.SchemaVersion, err = recordedVersion(connCtx, s.db); err != nil {
		health.Error = err.Error()
		return health, err
	}
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&health.IntegrityCheck); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	return health, nil
}
