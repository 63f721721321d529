package entity

import (
	"errors"
	"fmt"
	"time"
)

// Source records where an entity or type originated.
type Source string

const (
	SourceCalais    Source = "C"
	SourceManual    Source = "M"
	SourceAutomatic Source = "A"
)

// Status is the editorial review state of an entity. The empty value means
// no review has happened and the stored active flag is authoritative.
type Status string

const (
	StatusUnset    Status = ""
	StatusApproved Status = "A"
	StatusPending  Status = "P"
	StatusInactive Status = "I"
)

// Type groups entities (Person, Company, Topic) and carries the relevance
// threshold items must meet to be active.
type Type struct {
	ID                 int64
	Name               string
	Source             Source
	Active             bool
	RelevanceThreshold float64
	ScopeNote          string
}

// Entity is a named concept extracted by a tagger.
type Entity struct {
	ID          int64
	Name        string
	TypeID      int64
	Active      bool
	DisplayName string
	SameAsID    *int64
	ParentID    *int64
	Source      Source
	ScopeNote   string
	Status      Status
	CreatedOn   time.Time
}

// Item links an entity to an entry.
type Item struct {
	ID         int64
	EntryID    int64
	EntityID   int64
	TypeID     int64
	Relevance  float64
	Active     bool
	CreatedOn  time.Time
	ModifiedOn time.Time
}

// ActiveStatus derives whether an entity should be active from its review
// status and its type.
func ActiveStatus(e *Entity, t *Type) bool {
	if e == nil {
		return false
	}
	if e.Status == StatusUnset {
		return e.Active
	}
	if e.Status == StatusInactive {
		return false
	}
	if t != nil && !t.Active {
		return false
	}
	return true
}

// ItemActive reports whether an item passes the relevance threshold and
// belongs to an active type and entity.
func ItemActive(relevance float64, t *Type, e *Entity) bool {
	if t == nil || e == nil {
		return false
	}
	if relevance < t.RelevanceThreshold {
		return false
	}
	return t.Active && e.Active
}

var (
	ErrSameAsMissing     = errors.New("same-as entity does not exist")
	ErrSameAsInactive    = errors.New("same-as entity is inactive")
	ErrSameAsNotParent   = errors.New("same-as entity is itself an alias")
	ErrHasSameAsChildren = errors.New("entity with same-as children must remain a same-as parent")
	ErrDisplayNameAlias  = errors.New("display name is only allowed on same-as parents")
	ErrParentMissing     = errors.New("parent entity does not exist")
	ErrParentCycle       = errors.New("parent would create a cycle")
)

// Validate checks same-as, display-name, and parent invariants for e against
// the graph. e.Active must already reflect its review status, since an
// inactive entity is never a same-as parent.
func Validate(e *Entity, g *Graph) error {
	if e == nil {
		return errors.New("entity is nil")
	}
	if e.SameAsID != nil && *e.SameAsID != e.ID {
		target := g.Entity(*e.SameAsID)
		if target == nil {
			return fmt.Errorf("%w: id %d", ErrSameAsMissing, *e.SameAsID)
		}
		if !target.Active {
			return fmt.Errorf("%w: %s", ErrSameAsInactive, target.Name)
		}
		if !IsSameAsParent(target) {
			return fmt.Errorf("%w: %s", ErrSameAsNotParent, target.Name)
		}
	}
	if !IsSameAsParent(e) {
		if e.ID != 0 && len(g.SameAsChildren(e.ID)) > 0 {
			return ErrHasSameAsChildren
		}
		if e.DisplayName != "" {
			return ErrDisplayNameAlias
		}
	}
	if e.ParentID != nil && *e.ParentID != e.ID {
		parent := g.Entity(*e.ParentID)
		if parent == nil {
			return fmt.Errorf("%w: id %d", ErrParentMissing, *e.ParentID)
		}
		if e.ID != 0 {
			for _, d := range g.Descendants(e.ID) {
				if d.ID == parent.ID {
					return fmt.Errorf("%w: %s", ErrParentCycle, parent.Name)
				}
			}
		}
	}
	return nil
}

// IsSameAsParent reports whether e is an active canonical entity: it has no
// alias target, or it aliases itself.
func IsSameAsParent(e *Entity) bool {
	if e == nil || !e.Active {
		return false
	}
	return e.SameAsID == nil || *e.SameAsID == e.ID
}
