package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"syndicate/internal/content"
	"syndicate/internal/transmission"
)

const entryColumns = "e.id, e.publication_id, e.title, e.sub_title, e.slug, e.body, e.excerpt, e.by_line, e.credit_line, e.location, e.keywords, e.tags, e.status, e.reason, e.pub_date, e.created_on, e.modified_on, e.approved_on, e.approved_by, e.exclude_buyers"

// EntryFilter narrows entry listings. Zero values do not filter.
type EntryFilter struct {
	PublicationIDs []int64
	Statuses       []content.Status
	CreatedSince   *time.Time
	PubDateSince   *time.Time
	Limit          int
}

func scanEntry(row scanner, extra ...any) (*content.Entry, error) {
	var (
		e          content.Entry
		subTitle   sql.NullString
		body       sql.NullString
		excerpt    sql.NullString
		creditLine sql.NullString
		location   sql.NullString
		keywords   sql.NullString
		tags       sql.NullString
		status     int
		reason     int
		pubDate    string
		created    string
		modified   string
		approvedOn sql.NullString
		approvedBy sql.NullString
		excluded   sql.NullString
	)
	dest := []any{
		&e.ID, &e.PublicationID, &e.Title, &subTitle, &e.Slug, &body, &excerpt, &e.ByLine,
		&creditLine, &location, &keywords, &tags, &status, &reason, &pubDate, &created,
		&modified, &approvedOn, &approvedBy, &excluded,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	e.SubTitle = subTitle.String
	e.Body = body.String
	e.Excerpt = excerpt.String
	e.CreditLine = creditLine.String
	e.Location = location.String
	e.Keywords = keywords.String
	e.Tags = splitTags(tags.String)
	e.Status = content.Status(status)
	e.Reason = content.Reason(reason)
	e.PubDate, _ = parseTimeString(pubDate)
	e.CreatedOn, _ = parseTimeString(created)
	e.ModifiedOn, _ = parseTimeString(modified)
	e.ApprovedOn = parseTimePtr(approvedOn.String)
	e.ApprovedBy = approvedBy.String
	e.ExcludeBuyers = splitIDs(excluded.String)
	return &e, nil
}

// SaveEntry inserts a new entry (ID zero) or updates an existing one. A
// published entry's slug must be unique within its publication.
func (s *Store) SaveEntry(ctx context.Context, e *content.Entry) error {
	if e == nil {
		return errors.New("entry is nil")
	}
	if e.PublicationID == 0 {
		return errors.New("entry publication is required")
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if e.CreatedOn.IsZero() {
		e.CreatedOn = now
	}
	if e.ModifiedOn.IsZero() {
		e.ModifiedOn = now
	}
	if e.PubDate.IsZero() {
		e.PubDate = e.CreatedOn
	}
	e.Tags = content.NormalizeTags(e.Tags)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if e.Status == content.StatusPublished {
			var clash int64
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM entries WHERE publication_id = ? AND slug = ? AND status = ? AND id <> ? LIMIT 1`,
				e.PublicationID, e.Slug, int(content.StatusPublished), e.ID,
			).Scan(&clash)
			if err == nil {
				return fmt.Errorf("entry %q: %w", e.Slug, ErrDuplicateSlug)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("check slug: %w", err)
			}
		}

		args := []any{
			e.PublicationID, e.Title, nullableString(e.SubTitle), e.Slug, nullableString(e.Body),
			nullableString(e.Excerpt), e.ByLine, nullableString(e.CreditLine), nullableString(e.Location),
			nullableString(e.Keywords), nullableString(joinTags(e.Tags)), int(e.Status), int(e.Reason),
			formatTime(e.PubDate), formatTime(e.CreatedOn), formatTime(e.ModifiedOn),
			nullableTime(e.ApprovedOn), nullableString(e.ApprovedBy), nullableString(joinIDs(e.ExcludeBuyers)),
		}
		if e.ID == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO entries (publication_id, title, sub_title, slug, body, excerpt, by_line, credit_line,
				 location, keywords, tags, status, reason, pub_date, created_on, modified_on, approved_on, approved_by, exclude_buyers)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return conflictError("insert entry", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("entry id: %w", err)
			}
			e.ID = id
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET publication_id = ?, title = ?, sub_title = ?, slug = ?, body = ?, excerpt = ?, by_line = ?,
			 credit_line = ?, location = ?, keywords = ?, tags = ?, status = ?, reason = ?, pub_date = ?, created_on = ?,
			 modified_on = ?, approved_on = ?, approved_by = ?, exclude_buyers = ? WHERE id = ?`,
			append(args, e.ID)...)
		if err != nil {
			return conflictError("update entry", err)
		}
		return requireAffected(res, "entry", e.ID)
	})
}

// GetEntry fetches an entry by ID.
func (s *Store) GetEntry(ctx context.Context, id int64) (*content.Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+entryColumns+" FROM entries e WHERE e.id = ?", id)
	return notFound(scanEntry(row))
}

// ListEntries returns entries matching the filter, newest first.
func (s *Store) ListEntries(ctx context.Context, filter EntryFilter) ([]content.Entry, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.PublicationIDs) > 0 {
		where = append(where, "e.publication_id IN ("+makePlaceholders(len(filter.PublicationIDs))+")")
		args = append(args, idArgs(filter.PublicationIDs)...)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "e.status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, int(st))
		}
	}
	if filter.CreatedSince != nil {
		where = append(where, "e.created_on >= ?")
		args = append(args, formatTime(*filter.CreatedSince))
	}
	if filter.PubDateSince != nil {
		where = append(where, "e.pub_date >= ?")
		args = append(args, formatTime(*filter.PubDateSince))
	}
	query := "SELECT " + entryColumns + " FROM entries e"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.created_on DESC, e.id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryEntries(ctx, query, args...)
}

// EntriesForPublications returns published entries of the given publications
// in creation order, optionally limited to those created at or after createdSince.
func (s *Store) EntriesForPublications(ctx context.Context, publicationIDs []int64, createdSince *time.Time) ([]content.Entry, error) {
	if len(publicationIDs) == 0 {
		return nil, nil
	}
	query := "SELECT " + entryColumns + " FROM entries e WHERE e.status = ? AND e.publication_id IN (" +
		makePlaceholders(len(publicationIDs)) + ")"
	args := append([]any{int(content.StatusPublished)}, idArgs(publicationIDs)...)
	if createdSince != nil {
		query += " AND e.created_on >= ?"
		args = append(args, formatTime(*createdSince))
	}
	query += " ORDER BY e.created_on, e.id"
	return s.queryEntries(ctx, query, args...)
}

// RecentTitles lists titles of entries of the given publications created at
// or after since, whatever their status.
func (s *Store) RecentTitles(ctx context.Context, publicationIDs []int64, since time.Time) ([]string, error) {
	if len(publicationIDs) == 0 {
		return nil, nil
	}
	args := append([]any{formatTime(since)}, idArgs(publicationIDs)...)
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT title FROM entries WHERE created_on >= ? AND publication_id IN (`+
			makePlaceholders(len(publicationIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("recent titles: %w", err)
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// QEntries returns published members of the given Qs, each with every
// matching Q ID. pubFilter restricts the owning publication when non-empty.
func (s *Store) QEntries(ctx context.Context, qIDs, pubFilter []int64, since *time.Time) ([]transmission.QEntry, error) {
	if len(qIDs) == 0 {
		return nil, nil
	}
	query := "SELECT " + entryColumns + ", group_concat(qi.q_id) FROM entries e JOIN q_items qi ON qi.entry_id = e.id" +
		" WHERE e.status = ? AND qi.q_id IN (" + makePlaceholders(len(qIDs)) + ")"
	args := append([]any{int(content.StatusPublished)}, idArgs(qIDs)...)
	if len(pubFilter) > 0 {
		query += " AND e.publication_id IN (" + makePlaceholders(len(pubFilter)) + ")"
		args = append(args, idArgs(pubFilter)...)
	}
	if since != nil {
		query += " AND e.created_on >= ?"
		args = append(args, formatTime(*since))
	}
	query += " GROUP BY e.id ORDER BY e.created_on, e.id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("q entries: %w", err)
	}
	defer rows.Close()

	var out []transmission.QEntry
	for rows.Next() {
		var memberships string
		e, err := scanEntry(rows, &memberships)
		if err != nil {
			return nil, err
		}
		out = append(out, transmission.QEntry{Entry: *e, QIDs: splitIDs(memberships)})
	}
	return out, rows.Err()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]content.Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	var out []content.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
