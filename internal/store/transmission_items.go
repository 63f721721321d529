package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"syndicate/internal/transmission"
)

const txItemColumns = "ti.id, ti.queue_id, ti.entry_id, ti.q_id, ti.publication_id, ti.action, ti.xml_format, ti.transmission_id, ti.error_message, ti.created_on, ti.scheduled_on, ti.transmitted_on"

func scanTxItem(row scanner) (*transmission.Item, error) {
	var (
		it                          transmission.Item
		qID                         sql.NullInt64
		action                      string
		xmlFormat, txID, errMessage sql.NullString
		created                     string
		scheduled, transmitted      sql.NullString
	)
	if err := row.Scan(&it.ID, &it.QueueID, &it.EntryID, &qID, &it.PublicationID, &action, &xmlFormat, &txID,
		&errMessage, &created, &scheduled, &transmitted); err != nil {
		return nil, err
	}
	if qID.Valid {
		id := qID.Int64
		it.QID = &id
	}
	it.Action = transmission.Action(action)
	it.XMLFormat = xmlFormat.String
	it.TransmissionID = txID.String
	it.Error = errMessage.String
	it.CreatedOn, _ = parseTimeString(created)
	it.ScheduledOn = parseTimePtr(scheduled.String)
	it.TransmittedOn = parseTimePtr(transmitted.String)
	return &it, nil
}

// GetOrCreateTxItem adds an entry to a queue unless the pair already exists.
// The publication and export format are copied from the entry and queue. An
// existing item is returned untouched with created false.
func (s *Store) GetOrCreateTxItem(ctx context.Context, queueID, entryID int64, qID *int64, action transmission.Action) (*transmission.Item, bool, error) {
	now := formatTime(time.Now().UTC())
	var scheduled any
	if action == transmission.ActionScheduled {
		scheduled = now
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO transmission_items (queue_id, entry_id, q_id, publication_id, action, xml_format, created_on, scheduled_on)
		 SELECT tq.id, e.id, ?, e.publication_id, ?, tq.xml_format, ?, ?
		 FROM entries e, transmission_queues tq WHERE e.id = ? AND tq.id = ?
		 ON CONFLICT(queue_id, entry_id) DO NOTHING`,
		nullableID(qID), string(action), now, scheduled, entryID, queueID)
	if err != nil {
		return nil, false, fmt.Errorf("insert transmission item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("transmission item rows affected: %w", err)
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+txItemColumns+" FROM transmission_items ti WHERE ti.queue_id = ? AND ti.entry_id = ?", queueID, entryID)
	item, err := notFound(scanTxItem(row))
	if err != nil {
		return nil, false, fmt.Errorf("transmission item for queue %d entry %d: %w", queueID, entryID, err)
	}
	return item, n > 0, nil
}

// ListTxItems returns items matching the filter in creation order.
func (s *Store) ListTxItems(ctx context.Context, filter transmission.ItemFilter) ([]transmission.Item, error) {
	var (
		where []string
		args  []any
	)
	if filter.QueueID != 0 {
		where = append(where, "ti.queue_id = ?")
		args = append(args, filter.QueueID)
	}
	if len(filter.Actions) > 0 {
		where = append(where, "ti.action IN ("+makePlaceholders(len(filter.Actions))+")")
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	if len(filter.EntryIDs) > 0 {
		where = append(where, "ti.entry_id IN ("+makePlaceholders(len(filter.EntryIDs))+")")
		args = append(args, idArgs(filter.EntryIDs)...)
	}
	if filter.CreatedOn != nil {
		where = append(where, "ti.created_on >= ? AND ti.created_on < ?")
		args = append(args, formatTime(filter.CreatedOn.From), formatTime(filter.CreatedOn.To))
	}
	query := "SELECT " + txItemColumns + " FROM transmission_items ti"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ti.created_on, ti.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transmission items: %w", err)
	}
	defer rows.Close()
	var out []transmission.Item
	for rows.Next() {
		it, err := scanTxItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// SetTxItemActions moves items to a new action. Moving to Scheduled stamps
// scheduled_on; any other action leaves it as is.
func (s *Store) SetTxItemActions(ctx context.Context, ids []int64, action transmission.Action) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{string(action), string(action), formatTime(time.Now().UTC())}
	args = append(args, idArgs(ids)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_items SET action = ?,
		 scheduled_on = CASE WHEN ? = 'S' THEN ? ELSE scheduled_on END
		 WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("set transmission item actions: %w", err)
	}
	return res.RowsAffected()
}

// MarkCreated records that an export document was rendered for the item.
func (s *Store) MarkCreated(ctx context.Context, id int64, transmissionID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_items SET action = 'C', transmission_id = ?, error_message = NULL WHERE id = ?`,
		transmissionID, id)
	if err != nil {
		return fmt.Errorf("mark created: %w", err)
	}
	return requireAffected(res, "transmission item", id)
}

// MarkTransmitted records a successful upload.
func (s *Store) MarkTransmitted(ctx context.Context, id int64, transmissionID string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_items SET action = 'T', transmission_id = ?, transmitted_on = ?, error_message = NULL WHERE id = ?`,
		transmissionID, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark transmitted: %w", err)
	}
	return requireAffected(res, "transmission item", id)
}

// MarkFailed records a failed render or upload.
func (s *Store) MarkFailed(ctx context.Context, id int64, transmissionID, message string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_items SET action = 'F', transmission_id = ?, error_message = ? WHERE id = ?`,
		nullableString(transmissionID), message, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireAffected(res, "transmission item", id)
}

// ResetCreated moves items left in Created by an interrupted transmission
// back to Scheduled so the next run picks them up again.
func (s *Store) ResetCreated(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE transmission_items SET action = 'S', error_message = NULL WHERE action = 'C'`)
	if err != nil {
		return 0, fmt.Errorf("reset created items: %w", err)
	}
	return res.RowsAffected()
}

// ScheduledQueueIDs lists active queues holding at least one Scheduled item.
func (s *Store) ScheduledQueueIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT ti.queue_id FROM transmission_items ti
		 JOIN transmission_queues tq ON tq.id = ti.queue_id
		 WHERE ti.action = 'S' AND tq.active = 1 ORDER BY ti.queue_id`)
	if err != nil {
		return nil, fmt.Errorf("scheduled queues: %w", err)
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

// TxStatusCounts groups items by publication and action. The optional range
// applies to the item's created_on or the entry's pub_date.
func (s *Store) TxStatusCounts(ctx context.Context, filter transmission.CountFilter) ([]transmission.StatusCount, error) {
	query := `SELECT ti.publication_id, ti.action, COUNT(1) FROM transmission_items ti
		JOIN entries e ON e.id = ti.entry_id`
	var (
		where []string
		args  []any
	)
	if filter.QueueID != 0 {
		where = append(where, "ti.queue_id = ?")
		args = append(args, filter.QueueID)
	}
	if filter.Range != nil {
		column := "ti.created_on"
		if filter.Field == transmission.DatePublished {
			column = "e.pub_date"
		}
		where = append(where, column+" >= ? AND "+column+" < ?")
		args = append(args, formatTime(filter.Range.From), formatTime(filter.Range.To))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY ti.publication_id, ti.action ORDER BY ti.publication_id, ti.action"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()
	var out []transmission.StatusCount
	for rows.Next() {
		var (
			c      transmission.StatusCount
			action string
		)
		if err := rows.Scan(&c.PublicationID, &action, &c.Count); err != nil {
			return nil, err
		}
		c.Action = transmission.Action(action)
		out = append(out, c)
	}
	return out, rows.Err()
}
