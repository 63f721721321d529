package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"syndicate/internal/content"
	"syndicate/internal/entity"
	"syndicate/internal/events"
	"syndicate/internal/logging"
	"syndicate/internal/services"
)

// Store is the persistence the tagging service depends on.
type Store interface {
	GetEntry(ctx context.Context, id int64) (*content.Entry, error)
	HasEntityItems(ctx context.Context, entryID int64) (bool, error)
	GetOrCreateEntityType(ctx context.Context, name string) (*entity.Type, bool, error)
	GetOrCreateEntity(ctx context.Context, name string, typeID int64) (*entity.Entity, bool, error)
	GetEntityType(ctx context.Context, id int64) (*entity.Type, error)
	UpsertEntityType(ctx context.Context, t *entity.Type) error
	SaveEntity(ctx context.Context, e *entity.Entity) error
	LoadGraph(ctx context.Context) (*entity.Graph, error)
	ReplaceEntityItems(ctx context.Context, entryID int64, items []entity.Item) error
	EntityItemsForEntry(ctx context.Context, entryID int64) ([]entity.Item, error)
	EntityItemsForEntity(ctx context.Context, entityID int64) ([]entity.Item, error)
	SetEntityItemsActive(ctx context.Context, active map[int64]bool) error
}

// Tag is one raw tagger result.
type Tag struct {
	Type      string        `json:"type" yaml:"type"`
	Name      string        `json:"name" yaml:"name"`
	Relevance float64       `json:"relevance" yaml:"relevance"`
	Source    entity.Source `json:"source,omitempty" yaml:"source,omitempty"`
}

// IngestResult reports what Ingest did.
type IngestResult struct {
	EntryID         int64
	Skipped         bool
	Items           int
	ActiveItems     int
	CreatedTypes    int
	CreatedEntities int
}

// Service applies tagger output and entity edits.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService builds a tagging service. A nil publisher discards events.
func NewService(st Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: st, publisher: publisher, logger: logging.NewComponentLogger(logger, "tagging")}
}

// Ingest turns raw tags into the entry's entity items. An entry that already
// has items is left alone unless force is set.
func (s *Service) Ingest(ctx context.Context, entryID int64, tags []Tag, force bool) (IngestResult, error) {
	result := IngestResult{EntryID: entryID}
	if _, err := s.store.GetEntry(ctx, entryID); err != nil {
		return result, fmt.Errorf("tag entry %d: %w", entryID, err)
	}
	if !force {
		tagged, err := s.store.HasEntityItems(ctx, entryID)
		if err != nil {
			return result, err
		}
		if tagged {
			result.Skipped = true
			return result, nil
		}
	}

	byEntity := make(map[int64]int)
	var items []entity.Item
	for _, tag := range tags {
		typeName := strings.TrimSpace(tag.Type)
		name := strings.TrimSpace(tag.Name)
		if typeName == "" || name == "" {
			continue
		}
		t, created, err := s.store.GetOrCreateEntityType(ctx, typeName)
		if err != nil {
			return result, fmt.Errorf("entity type %q: %w", typeName, err)
		}
		if created {
			result.CreatedTypes++
		}
		e, created, err := s.store.GetOrCreateEntity(ctx, name, t.ID)
		if err != nil {
			return result, fmt.Errorf("entity %q: %w", name, err)
		}
		if created {
			result.CreatedEntities++
			if tag.Source != "" && tag.Source != e.Source {
				e.Source = tag.Source
				if err := s.store.SaveEntity(ctx, e); err != nil {
					return result, fmt.Errorf("entity %q source: %w", name, err)
				}
			}
		}
		if idx, ok := byEntity[e.ID]; ok {
			if tag.Relevance > items[idx].Relevance {
				items[idx].Relevance = tag.Relevance
				items[idx].Active = entity.ItemActive(tag.Relevance, t, e)
			}
			continue
		}
		byEntity[e.ID] = len(items)
		items = append(items, entity.Item{
			EntryID:   entryID,
			EntityID:  e.ID,
			TypeID:    t.ID,
			Relevance: tag.Relevance,
			Active:    entity.ItemActive(tag.Relevance, t, e),
		})
	}

	if err := s.store.ReplaceEntityItems(ctx, entryID, items); err != nil {
		return result, fmt.Errorf("replace entity items for entry %d: %w", entryID, err)
	}
	result.Items = len(items)
	for _, it := range items {
		if it.Active {
			result.ActiveItems++
		}
	}

	s.logger.Info("entry tagged",
		logging.String(logging.FieldEventType, "entry_tagged"),
		logging.Int64(logging.FieldEntryID, entryID),
		logging.Int("items", result.Items),
		logging.Int("active_items", result.ActiveItems),
		logging.Int("new_entities", result.CreatedEntities),
	)
	ev := events.New(events.EntryTagged)
	ev.EntryID = entryID
	ev.Message = fmt.Sprintf("%d items", result.Items)
	s.publish(ctx, ev)
	return result, nil
}

// SaveEntity validates and stores an entity. Its active flag is derived from
// the review status and type; when the flag changes every item referencing
// the entity is recomputed. It returns the number of items updated.
func (s *Service) SaveEntity(ctx context.Context, e *entity.Entity) (int, error) {
	if e == nil || strings.TrimSpace(e.Name) == "" {
		return 0, fmt.Errorf("%w: entity name is required", services.ErrValidation)
	}
	graph, err := s.store.LoadGraph(ctx)
	if err != nil {
		return 0, err
	}
	t := graph.Type(e.TypeID)
	if t == nil {
		return 0, fmt.Errorf("%w: entity type %d does not exist", services.ErrValidation, e.TypeID)
	}
	e.Active = entity.ActiveStatus(e, t)
	if err := entity.Validate(e, graph); err != nil {
		return 0, fmt.Errorf("%w: %w", services.ErrValidation, err)
	}

	wasActive := false
	existed := false
	if e.ID != 0 {
		prev := graph.Entity(e.ID)
		if prev == nil {
			return 0, fmt.Errorf("entity %d: %w", e.ID, services.ErrNotFound)
		}
		existed = true
		wasActive = prev.Active
	}
	if err := s.store.SaveEntity(ctx, e); err != nil {
		return 0, err
	}
	if !existed || wasActive == e.Active {
		return 0, nil
	}

	changed, err := s.propagate(ctx, []*entity.Entity{e}, t)
	if err != nil {
		return 0, err
	}
	s.logger.Info("entity active flag propagated",
		logging.String(logging.FieldEventType, "entity_propagated"),
		logging.Int64("entity_id", e.ID),
		logging.Bool("active", e.Active),
		logging.Int("items", changed),
	)
	ev := events.New(events.EntityPropagated)
	ev.Message = fmt.Sprintf("entity %d active=%t items=%d", e.ID, e.Active, changed)
	s.publish(ctx, ev)
	return changed, nil
}

// SaveType stores an entity type. Changing its active flag re-derives and
// stores the active flag of every reviewed entity of the type; changing the
// flag or the relevance threshold recomputes their items. It returns the
// number of items updated.
func (s *Service) SaveType(ctx context.Context, t *entity.Type) (int, error) {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return 0, fmt.Errorf("%w: entity type name is required", services.ErrValidation)
	}
	if t.RelevanceThreshold < 0 {
		return 0, fmt.Errorf("%w: relevance threshold must not be negative", services.ErrValidation)
	}
	var prev *entity.Type
	if t.ID != 0 {
		p, err := s.store.GetEntityType(ctx, t.ID)
		if err != nil {
			return 0, fmt.Errorf("entity type %d: %w", t.ID, err)
		}
		prev = p
	}
	if err := s.store.UpsertEntityType(ctx, t); err != nil {
		return 0, err
	}
	if prev == nil || (prev.Active == t.Active && prev.RelevanceThreshold == t.RelevanceThreshold) {
		return 0, nil
	}
	graph, err := s.store.LoadGraph(ctx)
	if err != nil {
		return 0, err
	}
	members := graph.EntitiesOfType(t.ID)
	flipped := 0
	if prev.Active != t.Active {
		for _, e := range members {
			active := entity.ActiveStatus(e, t)
			if active == e.Active {
				continue
			}
			e.Active = active
			if err := s.store.SaveEntity(ctx, e); err != nil {
				return 0, fmt.Errorf("entity %d: %w", e.ID, err)
			}
			flipped++
		}
	}
	changed, err := s.propagate(ctx, members, t)
	if err != nil {
		return 0, err
	}
	s.logger.Info("entity type change propagated",
		logging.String(logging.FieldEventType, "entity_type_propagated"),
		logging.Int64("type_id", t.ID),
		logging.Int("entities", flipped),
		logging.Int("items", changed),
	)
	return changed, nil
}

// Display groups the active entities of an entry for presentation.
func (s *Service) Display(ctx context.Context, entryID int64) ([]entity.DisplayGroup, error) {
	items, err := s.store.EntityItemsForEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	graph, err := s.store.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	return entity.GroupForDisplay(graph, items), nil
}

func (s *Service) propagate(ctx context.Context, entities []*entity.Entity, t *entity.Type) (int, error) {
	flags := make(map[int64]bool)
	for _, e := range entities {
		items, err := s.store.EntityItemsForEntity(ctx, e.ID)
		if err != nil {
			return 0, err
		}
		for _, it := range items {
			if active := entity.ItemActive(it.Relevance, t, e); active != it.Active {
				flags[it.ID] = active
			}
		}
	}
	if err := s.store.SetEntityItemsActive(ctx, flags); err != nil {
		return 0, err
	}
	return len(flags), nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logging.WarnWithContext(s.logger, "event publish failed", "event_publish_failed",
			logging.String("event", string(ev.Type)),
			logging.Error(err),
		)
	}
}
