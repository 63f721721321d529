package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"syndicate/internal/rules"
)

const qColumns = "id, title, slug, type, items_age, published_no_later_than"

func scanQ(row scanner) (*rules.Q, error) {
	var (
		q     rules.Q
		qType string
		limit sql.NullString
	)
	if err := row.Scan(&q.ID, &q.Title, &q.Slug, &qType, &q.ItemsAge, &limit); err != nil {
		return nil, err
	}
	q.Type = rules.QType(qType)
	q.PublishedNoLaterThan = parseTimePtr(limit.String)
	return &q, nil
}

// SaveQ inserts or updates a Q and replaces its tag rules.
func (s *Store) SaveQ(ctx context.Context, q *rules.Q) error {
	if q == nil {
		return errors.New("q is nil")
	}
	if strings.TrimSpace(q.Slug) == "" {
		return errors.New("q slug is required")
	}
	if q.ItemsAge == 0 {
		q.ItemsAge = rules.DefaultItemsAge
	}
	if err := rules.ValidateItemsAge(q.ItemsAge); err != nil {
		return err
	}
	if q.Type == "" {
		q.Type = rules.QInternal
	}
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if q.ID == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO qs (title, slug, type, items_age, published_no_later_than) VALUES (?, ?, ?, ?, ?)`,
				q.Title, q.Slug, string(q.Type), q.ItemsAge, nullableTime(q.PublishedNoLaterThan))
			if err != nil {
				return conflictError("insert q", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("q id: %w", err)
			}
			q.ID = id
		} else {
			res, err := tx.ExecContext(ctx,
				`UPDATE qs SET title = ?, slug = ?, type = ?, items_age = ?, published_no_later_than = ? WHERE id = ?`,
				q.Title, q.Slug, string(q.Type), q.ItemsAge, nullableTime(q.PublishedNoLaterThan), q.ID)
			if err != nil {
				return conflictError("update q", err)
			}
			if err := requireAffected(res, "q", q.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM tag_rules WHERE q_id = ?", q.ID); err != nil {
				return fmt.Errorf("clear tag rules: %w", err)
			}
		}
		for i := range q.Rules {
			r := &q.Rules[i]
			r.QID = q.ID
			res, err := tx.ExecContext(ctx, "INSERT INTO tag_rules (q_id, kind, value) VALUES (?, ?, ?)",
				q.ID, string(r.Kind), r.Value)
			if err != nil {
				return fmt.Errorf("insert tag rule: %w", err)
			}
			if id, err := res.LastInsertId(); err == nil {
				r.ID = id
			}
		}
		return nil
	})
}

// QBySlug fetches a Q with its rules by slug.
func (s *Store) QBySlug(ctx context.Context, slug string) (*rules.Q, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+qColumns+" FROM qs WHERE slug = ?", strings.TrimSpace(slug))
	q, err := notFound(scanQ(row))
	if err != nil {
		return nil, err
	}
	return q, s.loadRules(ctx, []*rules.Q{q})
}

// ListQs returns every Q with its rules, ordered by ID.
func (s *Store) ListQs(ctx context.Context) ([]rules.Q, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+qColumns+" FROM qs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list qs: %w", err)
	}
	var out []rules.Q
	for rows.Next() {
		q, err := scanQ(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*rules.Q, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, s.loadRules(ctx, ptrs)
}

func (s *Store) loadRules(ctx context.Context, qs []*rules.Q) error {
	if len(qs) == 0 {
		return nil
	}
	byID := make(map[int64]*rules.Q, len(qs))
	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		q.Rules = nil
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT id, q_id, kind, value FROM tag_rules WHERE q_id IN ("+makePlaceholders(len(ids))+") ORDER BY id",
		idArgs(ids)...)
	if err != nil {
		return fmt.Errorf("load tag rules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r    rules.TagRule
			kind string
		)
		if err := rows.Scan(&r.ID, &r.QID, &kind, &r.Value); err != nil {
			return err
		}
		r.Kind = rules.Kind(kind)
		if q := byID[r.QID]; q != nil {
			q.Rules = append(q.Rules, r)
		}
	}
	return rows.Err()
}

// ReplaceEntryQs records the Qs an entry currently belongs to.
func (s *Store) ReplaceEntryQs(ctx context.Context, entryID int64, qIDs []int64) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM q_items WHERE entry_id = ?", entryID); err != nil {
			return fmt.Errorf("clear q items: %w", err)
		}
		for _, qID := range qIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO q_items (entry_id, q_id) VALUES (?, ?)", entryID, qID); err != nil {
				return fmt.Errorf("insert q item: %w", err)
			}
		}
		return nil
	})
}

// EntryQs lists the Q IDs an entry belongs to.
func (s *Store) EntryQs(ctx context.Context, entryID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT q_id FROM q_items WHERE entry_id = ? ORDER BY q_id", entryID)
	if err != nil {
		return nil, fmt.Errorf("entry qs: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
