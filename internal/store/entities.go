package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"syndicate/internal/entity"
)

const entityTypeColumns = "id, name, source, active, relevance_threshold, scope_note"

const entityColumns = "id, name, type_id, active, display_name, same_as_id, parent_id, source, scope_note, status, created_on"

const entityItemColumns = "id, entry_id, entity_id, type_id, relevance, active, created_on, modified_on"

func scanEntityType(row scanner) (*entity.Type, error) {
	var (
		t         entity.Type
		source    string
		active    int
		scopeNote sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &source, &active, &t.RelevanceThreshold, &scopeNote); err != nil {
		return nil, err
	}
	t.Source = entity.Source(source)
	t.Active = active != 0
	t.ScopeNote = scopeNote.String
	return &t, nil
}

func scanEntity(row scanner) (*entity.Entity, error) {
	var (
		e           entity.Entity
		active      int
		displayName sql.NullString
		sameAs      sql.NullInt64
		parent      sql.NullInt64
		source      string
		scopeNote   sql.NullString
		status      sql.NullString
		created     string
	)
	if err := row.Scan(&e.ID, &e.Name, &e.TypeID, &active, &displayName, &sameAs, &parent, &source, &scopeNote, &status, &created); err != nil {
		return nil, err
	}
	e.Active = active != 0
	e.DisplayName = displayName.String
	if sameAs.Valid {
		id := sameAs.Int64
		e.SameAsID = &id
	}
	if parent.Valid {
		id := parent.Int64
		e.ParentID = &id
	}
	e.Source = entity.Source(source)
	e.ScopeNote = scopeNote.String
	e.Status = entity.Status(status.String)
	e.CreatedOn, _ = parseTimeString(created)
	return &e, nil
}

func scanEntityItem(row scanner) (*entity.Item, error) {
	var (
		it       entity.Item
		active   int
		created  string
		modified string
	)
	if err := row.Scan(&it.ID, &it.EntryID, &it.EntityID, &it.TypeID, &it.Relevance, &active, &created, &modified); err != nil {
		return nil, err
	}
	it.Active = active != 0
	it.CreatedOn, _ = parseTimeString(created)
	it.ModifiedOn, _ = parseTimeString(modified)
	return &it, nil
}

// UpsertEntityType inserts a type or updates the one with the same name.
func (s *Store) UpsertEntityType(ctx context.Context, t *entity.Type) error {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return errors.New("entity type name is required")
	}
	if t.Source == "" {
		t.Source = entity.SourceAutomatic
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO entity_types (name, source, active, relevance_threshold, scope_note) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET source = excluded.source, active = excluded.active,
		 relevance_threshold = excluded.relevance_threshold, scope_note = excluded.scope_note`,
		t.Name, string(t.Source), boolToInt(t.Active), t.RelevanceThreshold, nullableString(t.ScopeNote),
	)
	if err != nil {
		return fmt.Errorf("upsert entity type: %w", err)
	}
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT id FROM entity_types WHERE name = ?", t.Name)
	return row.Scan(&t.ID)
}

// GetOrCreateEntityType returns the named type, creating an active type with
// a zero relevance threshold when it does not exist.
func (s *Store) GetOrCreateEntityType(ctx context.Context, name string) (*entity.Type, bool, error) {
	name = strings.TrimSpace(name)
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+entityTypeColumns+" FROM entity_types WHERE name = ?", name)
	t, err := scanEntityType(row)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup entity type: %w", err)
	}
	created := &entity.Type{Name: name, Source: entity.SourceAutomatic, Active: true}
	if err := s.UpsertEntityType(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// GetEntityType fetches a type by ID.
func (s *Store) GetEntityType(ctx context.Context, id int64) (*entity.Type, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+entityTypeColumns+" FROM entity_types WHERE id = ?", id)
	return notFound(scanEntityType(row))
}

// ListEntityTypes returns all types ordered by name.
func (s *Store) ListEntityTypes(ctx context.Context) ([]entity.Type, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+entityTypeColumns+" FROM entity_types ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()
	var out []entity.Type
	for rows.Next() {
		t, err := scanEntityType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetOrCreateEntity returns the entity with the given name and type, creating
// an active, pending entity when missing.
func (s *Store) GetOrCreateEntity(ctx context.Context, name string, typeID int64) (*entity.Entity, bool, error) {
	name = strings.TrimSpace(name)
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+entityColumns+" FROM entities WHERE name = ? AND type_id = ?", name, typeID)
	e, err := scanEntity(row)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup entity: %w", err)
	}
	created := &entity.Entity{
		Name:   name,
		TypeID: typeID,
		Active: true,
		Source: entity.SourceAutomatic,
		Status: entity.StatusPending,
	}
	if err := s.SaveEntity(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// SaveEntity inserts a new entity (ID zero) or updates an existing one.
func (s *Store) SaveEntity(ctx context.Context, e *entity.Entity) error {
	if e == nil {
		return errors.New("entity is nil")
	}
	if e.Source == "" {
		e.Source = entity.SourceAutomatic
	}
	if e.CreatedOn.IsZero() {
		e.CreatedOn = time.Now().UTC()
	}
	args := []any{
		e.Name, e.TypeID, boolToInt(e.Active), nullableString(e.DisplayName), nullableID(e.SameAsID),
		nullableID(e.ParentID), string(e.Source), nullableString(e.ScopeNote), nullableString(string(e.Status)),
	}
	if e.ID == 0 {
		res, err := s.execWithRetry(ctx,
			`INSERT INTO entities (name, type_id, active, display_name, same_as_id, parent_id, source, scope_note, status, created_on)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(args, formatTime(e.CreatedOn))...)
		if err != nil {
			return conflictError("insert entity", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("entity id: %w", err)
		}
		e.ID = id
		return nil
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE entities SET name = ?, type_id = ?, active = ?, display_name = ?, same_as_id = ?, parent_id = ?,
		 source = ?, scope_note = ?, status = ? WHERE id = ?`,
		append(args, e.ID)...)
	if err != nil {
		return conflictError("update entity", err)
	}
	return requireAffected(res, "entity", e.ID)
}

// LoadGraph reads every type and entity into an in-memory graph.
func (s *Store) LoadGraph(ctx context.Context) (*entity.Graph, error) {
	types, err := s.ListEntityTypes(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+entityColumns+" FROM entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var entities []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entity.NewGraph(types, entities), nil
}

// ReplaceEntityItems swaps the entity items of an entry in one transaction.
func (s *Store) ReplaceEntityItems(ctx context.Context, entryID int64, items []entity.Item) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entity_items WHERE entry_id = ?", entryID); err != nil {
			return fmt.Errorf("clear entity items: %w", err)
		}
		for i := range items {
			it := &items[i]
			it.EntryID = entryID
			if it.CreatedOn.IsZero() {
				it.CreatedOn = now
			}
			it.ModifiedOn = now
			res, err := tx.ExecContext(ctx,
				`INSERT INTO entity_items (entry_id, entity_id, type_id, relevance, active, created_on, modified_on)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(entry_id, entity_id) DO UPDATE SET relevance = MAX(relevance, excluded.relevance),
				 active = excluded.active, modified_on = excluded.modified_on`,
				entryID, it.EntityID, it.TypeID, it.Relevance, boolToInt(it.Active),
				formatTime(it.CreatedOn), formatTime(it.ModifiedOn),
			)
			if err != nil {
				return fmt.Errorf("insert entity item: %w", err)
			}
			if id, err := res.LastInsertId(); err == nil {
				it.ID = id
			}
		}
		return nil
	})
}

// EntityItemsForEntry lists the entity items attached to an entry.
func (s *Store) EntityItemsForEntry(ctx context.Context, entryID int64) ([]entity.Item, error) {
	return s.queryEntityItems(ctx, "SELECT "+entityItemColumns+" FROM entity_items WHERE entry_id = ? ORDER BY relevance DESC, id", entryID)
}

// EntityItemsForEntity lists every item referencing an entity.
func (s *Store) EntityItemsForEntity(ctx context.Context, entityID int64) ([]entity.Item, error) {
	return s.queryEntityItems(ctx, "SELECT "+entityItemColumns+" FROM entity_items WHERE entity_id = ? ORDER BY id", entityID)
}

// HasEntityItems reports whether an entry has been tagged.
func (s *Store) HasEntityItems(ctx context.Context, entryID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM entity_items WHERE entry_id = ?", entryID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count entity items: %w", err)
	}
	return n > 0, nil
}

// SetEntityItemsActive applies per-item active flags in one statement.
func (s *Store) SetEntityItemsActive(ctx context.Context, active map[int64]bool) error {
	if len(active) == 0 {
		return nil
	}
	var (
		cases strings.Builder
		ids   []int64
		args  []any
	)
	for id, flag := range active {
		cases.WriteString(" WHEN ? THEN ?")
		args = append(args, id, boolToInt(flag))
		ids = append(ids, id)
	}
	args = append(args, formatTime(time.Now().UTC()))
	args = append(args, idArgs(ids)...)
	_, err := s.execWithRetry(ctx,
		"UPDATE entity_items SET active = CASE id"+cases.String()+" ELSE active END, modified_on = ? WHERE id IN ("+
			makePlaceholders(len(ids))+")", args...)
	if err != nil {
		return fmt.Errorf("set entity items active: %w", err)
	}
	return nil
}

func (s *Store) queryEntityItems(ctx context.Context, query string, args ...any) ([]entity.Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity items: %w", err)
	}
	defer rows.Close()
	var out []entity.Item
	for rows.Next() {
		it, err := scanEntityItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
