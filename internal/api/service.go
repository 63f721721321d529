package api

import (
	"context"
	"fmt"

	"syndicate/internal/content"
	"syndicate/internal/entity"
	"syndicate/internal/services"
	"syndicate/internal/transmission"
)

// Reader abstracts the store queries needed to build API views.
type Reader interface {
	ListTransmissionQs(ctx context.Context, filter transmission.QueueFilter) ([]transmission.Queue, error)
	GetTransmissionQ(ctx context.Context, id int64) (*transmission.Queue, error)
	ListTxItems(ctx context.Context, filter transmission.ItemFilter) ([]transmission.Item, error)
	TxStatusCounts(ctx context.Context, filter transmission.CountFilter) ([]transmission.StatusCount, error)
	GetEntry(ctx context.Context, id int64) (*content.Entry, error)
	GetPublication(ctx context.Context, id int64) (*content.Publication, error)
	GetAccount(ctx context.Context, id int64) (*content.Account, error)
	AccountBySlug(ctx context.Context, slug string) (*content.Account, error)
}

// EntityDisplayer groups an entry's active entity tags.
type EntityDisplayer interface {
	Display(ctx context.Context, entryID int64) ([]entity.DisplayGroup, error)
}

// Scope restricts reads to one buyer. The zero Scope is unrestricted.
type Scope struct {
	BuyerID int64
}

// Allows reports whether the scope may see a queue owned by buyerID.
func (s Scope) Allows(buyerID int64) bool {
	return s.BuyerID == 0 || s.BuyerID == buyerID
}

// Service exposes read-only operations returning API DTOs.
type Service struct {
	store    Reader
	entities EntityDisplayer
}

// NewService constructs a Service around the provided reader.
func NewService(store Reader, entities EntityDisplayer) *Service {
	if store == nil {
		return nil
	}
	return &Service{store: store, entities: entities}
}

// BuyerScope resolves a buyer slug into a Scope.
func (s *Service) BuyerScope(ctx context.Context, slug string) (Scope, error) {
	acct, err := s.store.AccountBySlug(ctx, slug)
	if err != nil {
		return Scope{}, err
	}
	if acct.Kind != content.AccountBuyer || !acct.Active {
		return Scope{}, fmt.Errorf("%w: %s is not an active buyer", services.ErrValidation, slug)
	}
	return Scope{BuyerID: acct.ID}, nil
}

// Queues lists active and inactive queues visible to scope.
func (s *Service) Queues(ctx context.Context, scope Scope) ([]Queue, error) {
	queues, err := s.store.ListTransmissionQs(ctx, transmission.QueueFilter{BuyerID: scope.BuyerID})
	if err != nil {
		return nil, err
	}
	buyers := map[int64]string{}
	out := make([]Queue, 0, len(queues))
	for _, q := range queues {
		slug, ok := buyers[q.BuyerID]
		if !ok {
			if acct, err := s.store.GetAccount(ctx, q.BuyerID); err == nil {
				slug = acct.Slug
			}
			buyers[q.BuyerID] = slug
		}
		out = append(out, FromQueue(q, slug))
	}
	return out, nil
}

// Queue loads one queue, hiding queues outside scope as not found.
func (s *Service) Queue(ctx context.Context, scope Scope, id int64) (*transmission.Queue, error) {
	q, err := s.store.GetTransmissionQ(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(q.BuyerID) {
		return nil, fmt.Errorf("%w: transmission queue %d", services.ErrNotFound, id)
	}
	return q, nil
}

// Items lists the items of a queue, optionally narrowed to actions.
func (s *Service) Items(ctx context.Context, scope Scope, queueID int64, actions []transmission.Action, limit int) ([]Item, error) {
	if _, err := s.Queue(ctx, scope, queueID); err != nil {
		return nil, err
	}
	items, err := s.store.ListTxItems(ctx, transmission.ItemFilter{QueueID: queueID, Actions: actions, Limit: limit})
	if err != nil {
		return nil, err
	}
	entries := map[int64]*content.Entry{}
	pubs := map[int64]*content.Publication{}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		entry, ok := entries[it.EntryID]
		if !ok {
			entry, _ = s.store.GetEntry(ctx, it.EntryID)
			entries[it.EntryID] = entry
		}
		pub, ok := pubs[it.PublicationID]
		if !ok {
			pub, _ = s.store.GetPublication(ctx, it.PublicationID)
			pubs[it.PublicationID] = pub
		}
		out = append(out, FromItem(it, entry, pub))
	}
	return out, nil
}

// StatusCounts runs the status report and resolves publication slugs.
func (s *Service) StatusCounts(ctx context.Context, scope Scope, filter transmission.CountFilter) ([]StatusCount, error) {
	if filter.QueueID != 0 {
		if _, err := s.Queue(ctx, scope, filter.QueueID); err != nil {
			return nil, err
		}
	} else if scope.BuyerID != 0 {
		return nil, fmt.Errorf("%w: buyer status counts require a queue", services.ErrValidation)
	}
	rows, err := s.store.TxStatusCounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	slugs := map[int64]string{}
	out := make([]StatusCount, 0, len(rows))
	for _, row := range rows {
		slug, ok := slugs[row.PublicationID]
		if !ok {
			if pub, err := s.store.GetPublication(ctx, row.PublicationID); err == nil {
				slug = pub.Slug
			}
			slugs[row.PublicationID] = slug
		}
		out = append(out, StatusCount{
			Publication: slug,
			Action:      string(row.Action),
			ActionName:  row.Action.Name(),
			Count:       row.Count,
		})
	}
	return out, nil
}

// Entry loads one entry view.
func (s *Service) Entry(ctx context.Context, id int64) (*Entry, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	pub, _ := s.store.GetPublication(ctx, e.PublicationID)
	view := FromEntry(*e, pub)
	return &view, nil
}

// EntityDisplay returns the grouped entity names for an entry.
func (s *Service) EntityDisplay(ctx context.Context, entryID int64) ([]EntityGroup, error) {
	if _, err := s.store.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}
	if s.entities == nil {
		return []EntityGroup{}, nil
	}
	groups, err := s.entities.Display(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return FromDisplayGroups(groups), nil
}
