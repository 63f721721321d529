package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"syndicate/internal/content"
)

const accountColumns = "id, slug, title, kind, email, active"

const publicationColumns = "id, account_id, slug, title, copyright, auto_schedule, active, time_zone, disclaimer"

func scanAccount(row scanner) (*content.Account, error) {
	var (
		a      content.Account
		kind   string
		email  sql.NullString
		active int
	)
	if err := row.Scan(&a.ID, &a.Slug, &a.Title, &kind, &email, &active); err != nil {
		return nil, err
	}
	a.Kind = content.AccountKind(kind)
	a.Email = email.String
	a.Active = active != 0
	return &a, nil
}

func scanPublication(row scanner) (*content.Publication, error) {
	var (
		p            content.Publication
		copyright    sql.NullString
		autoSchedule int
		active       int
		timeZone     sql.NullString
		disclaimer   sql.NullString
	)
	if err := row.Scan(&p.ID, &p.AccountID, &p.Slug, &p.Title, &copyright, &autoSchedule, &active, &timeZone, &disclaimer); err != nil {
		return nil, err
	}
	p.Copyright = copyright.String
	p.AutoSchedule = autoSchedule != 0
	p.Active = active != 0
	p.TimeZone = timeZone.String
	p.Disclaimer = disclaimer.String
	return &p, nil
}

// CreateAccount inserts a tenant and assigns its ID.
func (s *Store) CreateAccount(ctx context.Context, a *content.Account) error {
	if a == nil {
		return errors.New("account is nil")
	}
	a.Slug = strings.TrimSpace(a.Slug)
	if a.Slug == "" {
		return fmt.Errorf("account slug is required")
	}
	if a.Kind != content.AccountProvider && a.Kind != content.AccountBuyer {
		return fmt.Errorf("account %s: %w", a.Slug, ErrInvalidOwner)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO accounts (slug, title, kind, email, active) VALUES (?, ?, ?, ?, ?)`,
		a.Slug, a.Title, string(a.Kind), nullableString(a.Email), boolToInt(a.Active),
	)
	if err != nil {
		return conflictError("insert account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	a.ID = id
	return nil
}

// UpdateAccount persists title, email, and active flag changes.
func (s *Store) UpdateAccount(ctx context.Context, a *content.Account) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE accounts SET title = ?, email = ?, active = ? WHERE id = ?`,
		a.Title, nullableString(a.Email), boolToInt(a.Active), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res, "account", a.ID)
}

// GetAccount fetches an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*content.Account, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return notFound(scanAccount(row))
}

// AccountBySlug fetches an account by its unique slug.
func (s *Store) AccountBySlug(ctx context.Context, slug string) (*content.Account, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+accountColumns+" FROM accounts WHERE slug = ?", strings.TrimSpace(slug))
	return notFound(scanAccount(row))
}

// ListAccounts returns accounts of the given kind, or all when kind is empty.
func (s *Store) ListAccounts(ctx context.Context, kind content.AccountKind) ([]content.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY slug"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []content.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreatePublication inserts a publication owned by a provider account.
func (s *Store) CreatePublication(ctx context.Context, p *content.Publication) error {
	if p == nil {
		return errors.New("publication is nil")
	}
	owner, err := s.GetAccount(ctx, p.AccountID)
	if err != nil {
		return fmt.Errorf("publication owner: %w", err)
	}
	if owner.Kind != content.AccountProvider {
		return fmt.Errorf("publication %s owned by buyer %s: %w", p.Slug, owner.Slug, ErrInvalidOwner)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO publications (account_id, slug, title, copyright, auto_schedule, active, time_zone, disclaimer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountID, strings.TrimSpace(p.Slug), p.Title, nullableString(p.Copyright),
		boolToInt(p.AutoSchedule), boolToInt(p.Active), nullableString(p.TimeZone), nullableString(p.Disclaimer),
	)
	if err != nil {
		return conflictError("insert publication", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("publication id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdatePublication persists mutable publication settings.
func (s *Store) UpdatePublication(ctx context.Context, p *content.Publication) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE publications SET title = ?, copyright = ?, auto_schedule = ?, active = ?, time_zone = ?, disclaimer = ?
		 WHERE id = ?`,
		p.Title, nullableString(p.Copyright), boolToInt(p.AutoSchedule), boolToInt(p.Active),
		nullableString(p.TimeZone), nullableString(p.Disclaimer), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update publication: %w", err)
	}
	return requireAffected(res, "publication", p.ID)
}

// GetPublication fetches a publication by ID.
func (s *Store) GetPublication(ctx context.Context, id int64) (*content.Publication, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+publicationColumns+" FROM publications WHERE id = ?", id)
	return notFound(scanPublication(row))
}

// PublicationBySlug resolves a publication through its owner's slug.
func (s *Store) PublicationBySlug(ctx context.Context, accountSlug, slug string) (*content.Publication, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT p.id, p.account_id, p.slug, p.title, p.copyright, p.auto_schedule, p.active, p.time_zone, p.disclaimer
		 FROM publications p JOIN accounts a ON a.id = p.account_id
		 WHERE a.slug = ? AND p.slug = ?`,
		strings.TrimSpace(accountSlug), strings.TrimSpace(slug),
	)
	return notFound(scanPublication(row))
}

// ListPublications returns the publications of an account, or all when accountID is zero.
func (s *Store) ListPublications(ctx context.Context, accountID int64) ([]content.Publication, error) {
	query := "SELECT " + publicationColumns + " FROM publications"
	var args []any
	if accountID != 0 {
		query += " WHERE account_id = ?"
		args = append(args, accountID)
	}
	query += " ORDER BY account_id, slug"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var out []content.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
