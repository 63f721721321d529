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

const queueColumns = "id, title, slug, buyer_id, load_frequency, auto_schedule, refine_tags, override_last_updated, updated_on, last_run_on, strip_images, file_per_publication, file_per_industry, active, kind, black_list, white_list, xml_format, last_transmitted_on"

const (
	rolePublication = "sub"
	roleFilter      = "filter"
)

func scanQueue(row scanner) (*transmission.Queue, error) {
	var (
		q                                            transmission.Queue
		loadFrequency, refineTags                    sql.NullString
		updatedOn, lastRunOn, lastTransmittedOn      sql.NullString
		blackList, whiteList, xmlFormat              sql.NullString
		kind                                         string
		autoSchedule, override, strip, perPub, perIn int
		active                                       int
	)
	if err := row.Scan(&q.ID, &q.Title, &q.Slug, &q.BuyerID, &loadFrequency, &autoSchedule, &refineTags, &override,
		&updatedOn, &lastRunOn, &strip, &perPub, &perIn, &active, &kind, &blackList, &whiteList, &xmlFormat,
		&lastTransmittedOn); err != nil {
		return nil, err
	}
	q.LoadFrequency = loadFrequency.String
	q.AutoSchedule = autoSchedule != 0
	q.RefineTags = refineTags.String
	q.OverrideLastUpdated = override != 0
	q.UpdatedOn = parseTimePtr(updatedOn.String)
	q.LastRunOn = parseTimePtr(lastRunOn.String)
	q.LastTransmittedOn = parseTimePtr(lastTransmittedOn.String)
	q.StripImages = strip != 0
	q.FilePerPublication = perPub != 0
	q.FilePerIndustry = perIn != 0
	q.Active = active != 0
	q.Kind = transmission.Kind(kind)
	q.BlackList = blackList.String
	q.WhiteList = whiteList.String
	q.XMLFormat = xmlFormat.String
	return &q, nil
}

// SaveTransmissionQ inserts or updates a queue together with its
// publication and Q links. The owner must be a buyer account.
func (s *Store) SaveTransmissionQ(ctx context.Context, q *transmission.Queue) error {
	if q == nil {
		return errors.New("transmission queue is nil")
	}
	if strings.TrimSpace(q.Slug) == "" {
		return errors.New("transmission queue slug is required")
	}
	buyer, err := s.GetAccount(ctx, q.BuyerID)
	if err != nil {
		return fmt.Errorf("transmission queue buyer: %w", err)
	}
	if buyer.Kind != content.AccountBuyer {
		return fmt.Errorf("transmission queue %s owned by provider %s: %w", q.Slug, buyer.Slug, ErrInvalidOwner)
	}
	if q.Kind == "" {
		q.Kind = transmission.KindStandard
	}
	ctx = ensureContext(ctx)
	args := []any{
		q.Title, q.Slug, q.BuyerID, nullableString(q.LoadFrequency), boolToInt(q.AutoSchedule),
		nullableString(q.RefineTags), boolToInt(q.OverrideLastUpdated), nullableTime(q.UpdatedOn),
		nullableTime(q.LastRunOn), boolToInt(q.StripImages), boolToInt(q.FilePerPublication),
		boolToInt(q.FilePerIndustry), boolToInt(q.Active), string(q.Kind), nullableString(q.BlackList),
		nullableString(q.WhiteList), nullableString(q.XMLFormat),
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if q.ID == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO transmission_queues (title, slug, buyer_id, load_frequency, auto_schedule, refine_tags,
				 override_last_updated, updated_on, last_run_on, strip_images, file_per_publication, file_per_industry,
				 active, kind, black_list, white_list, xml_format)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return conflictError("insert transmission queue", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("transmission queue id: %w", err)
			}
			q.ID = id
		} else {
			res, err := tx.ExecContext(ctx,
				`UPDATE transmission_queues SET title = ?, slug = ?, buyer_id = ?, load_frequency = ?, auto_schedule = ?,
				 refine_tags = ?, override_last_updated = ?, updated_on = ?, last_run_on = ?, strip_images = ?,
				 file_per_publication = ?, file_per_industry = ?, active = ?, kind = ?, black_list = ?, white_list = ?,
				 xml_format = ? WHERE id = ?`, append(args, q.ID)...)
			if err != nil {
				return conflictError("update transmission queue", err)
			}
			if err := requireAffected(res, "transmission queue", q.ID); err != nil {
				return err
			}
			for _, table := range []string{"transmission_queue_publications", "transmission_queue_qs"} {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE queue_id = ?", q.ID); err != nil {
					return fmt.Errorf("clear %s: %w", table, err)
				}
			}
		}
		for role, ids := range map[string][]int64{rolePublication: q.SubPublications, roleFilter: q.FilterPublications} {
			for _, pubID := range ids {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO transmission_queue_publications (queue_id, publication_id, role) VALUES (?, ?, ?)",
					q.ID, pubID, role); err != nil {
					return fmt.Errorf("link publication: %w", err)
				}
			}
		}
		for pos, qID := range q.Qs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO transmission_queue_qs (queue_id, q_id, position) VALUES (?, ?, ?)",
				q.ID, qID, pos); err != nil {
				return fmt.Errorf("link q: %w", err)
			}
		}
		return nil
	})
}

// GetTransmissionQ fetches a queue with its links.
func (s *Store) GetTransmissionQ(ctx context.Context, id int64) (*transmission.Queue, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+queueColumns+" FROM transmission_queues WHERE id = ?", id)
	q, err := notFound(scanQueue(row))
	if err != nil {
		return nil, err
	}
	return q, s.loadQueueLinks(ctx, []*transmission.Queue{q})
}

// TransmissionQBySlug fetches a buyer's queue by slug.
func (s *Store) TransmissionQBySlug(ctx context.Context, buyerID int64, slug string) (*transmission.Queue, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+queueColumns+" FROM transmission_queues WHERE buyer_id = ? AND slug = ?", buyerID, strings.TrimSpace(slug))
	q, err := notFound(scanQueue(row))
	if err != nil {
		return nil, err
	}
	return q, s.loadQueueLinks(ctx, []*transmission.Queue{q})
}

// ListTransmissionQs returns queues matching the filter, ordered by ID.
func (s *Store) ListTransmissionQs(ctx context.Context, filter transmission.QueueFilter) ([]transmission.Queue, error) {
	var (
		where []string
		args  []any
	)
	if filter.BuyerID != 0 {
		where = append(where, "buyer_id = ?")
		args = append(args, filter.BuyerID)
	}
	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	query := "SELECT " + queueColumns + " FROM transmission_queues"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transmission queues: %w", err)
	}
	var out []transmission.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
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
	ptrs := make([]*transmission.Queue, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, s.loadQueueLinks(ctx, ptrs)
}

// TouchTransmissionQ records the refresh watermark and the time of the last
// refresh. last_run_on drives the load-frequency schedule, so only refreshes
// write it.
func (s *Store) TouchTransmissionQ(ctx context.Context, id int64, updatedOn, lastRunOn *time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_queues SET updated_on = COALESCE(?, updated_on), last_run_on = COALESCE(?, last_run_on) WHERE id = ?`,
		nullableTime(updatedOn), nullableTime(lastRunOn), id)
	if err != nil {
		return fmt.Errorf("touch transmission queue: %w", err)
	}
	return requireAffected(res, "transmission queue", id)
}

// MarkQueueTransmitted records when the queue last ran a transmission.
func (s *Store) MarkQueueTransmitted(ctx context.Context, id int64, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_queues SET last_transmitted_on = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark queue transmitted: %w", err)
	}
	return requireAffected(res, "transmission queue", id)
}

func (s *Store) loadQueueLinks(ctx context.Context, queues []*transmission.Queue) error {
	if len(queues) == 0 {
		return nil
	}
	byID := make(map[int64]*transmission.Queue, len(queues))
	ids := make([]int64, 0, len(queues))
	for _, q := range queues {
		q.SubPublications, q.FilterPublications, q.Qs = nil, nil, nil
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}
	in := "(" + makePlaceholders(len(ids)) + ")"

	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT queue_id, publication_id, role FROM transmission_queue_publications WHERE queue_id IN "+in+
			" ORDER BY publication_id", idArgs(ids)...)
	if err != nil {
		return fmt.Errorf("load queue publications: %w", err)
	}
	for rows.Next() {
		var (
			queueID, pubID int64
			role           string
		)
		if err := rows.Scan(&queueID, &pubID, &role); err != nil {
			rows.Close()
			return err
		}
		q := byID[queueID]
		if role == roleFilter {
			q.FilterPublications = append(q.FilterPublications, pubID)
		} else {
			q.SubPublications = append(q.SubPublications, pubID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ensureContext(ctx),
		"SELECT queue_id, q_id FROM transmission_queue_qs WHERE queue_id IN "+in+" ORDER BY position, q_id", idArgs(ids)...)
	if err != nil {
		return fmt.Errorf("load queue qs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var queueID, qID int64
		if err := rows.Scan(&queueID, &qID); err != nil {
			return err
		}
		byID[queueID].Qs = append(byID[queueID].Qs, qID)
	}
	return rows.Err()
}
