package entity

import (
	"sort"
)

// Graph is an in-memory snapshot of types and entities.
type Graph struct {
	types    map[int64]*Type
	entities map[int64]*Entity
	children map[int64][]int64
	aliases  map[int64][]int64
}

// NewGraph indexes the supplied types and entities.
func NewGraph(types []Type, entities []Entity) *Graph {
	g := &Graph{
		types:    make(map[int64]*Type, len(types)),
		entities: make(map[int64]*Entity, len(entities)),
		children: make(map[int64][]int64),
		aliases:  make(map[int64][]int64),
	}
	for i := range types {
		t := types[i]
		g.types[t.ID] = &t
	}
	for i := range entities {
		e := entities[i]
		g.entities[e.ID] = &e
	}
	for _, e := range g.entities {
		if e.ParentID != nil && *e.ParentID != e.ID {
			g.children[*e.ParentID] = append(g.children[*e.ParentID], e.ID)
		}
		if e.SameAsID != nil && *e.SameAsID != e.ID {
			g.aliases[*e.SameAsID] = append(g.aliases[*e.SameAsID], e.ID)
		}
	}
	for _, ids := range g.children {
		sortIDs(ids)
	}
	for _, ids := range g.aliases {
		sortIDs(ids)
	}
	return g
}

// Entity returns the entity with id, or nil.
func (g *Graph) Entity(id int64) *Entity {
	if g == nil {
		return nil
	}
	return g.entities[id]
}

// Type returns the type with id, or nil.
func (g *Graph) Type(id int64) *Type {
	if g == nil {
		return nil
	}
	return g.types[id]
}

// DisplayName returns the display name when set, otherwise the entity name.
func (g *Graph) DisplayName(e *Entity) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Name
}

// Canonical follows the same-as chain to the canonical entity.
func (g *Graph) Canonical(e *Entity) *Entity {
	seen := map[int64]struct{}{}
	for e != nil && e.SameAsID != nil && *e.SameAsID != e.ID {
		if _, ok := seen[e.ID]; ok {
			break
		}
		seen[e.ID] = struct{}{}
		next := g.Entity(*e.SameAsID)
		if next == nil {
			break
		}
		e = next
	}
	return e
}

// CanonicalName returns the display name of the canonical entity.
func (g *Graph) CanonicalName(e *Entity) string {
	return g.DisplayName(g.Canonical(e))
}

// EffectiveType prefers the parent's type, then the same-as target's type,
// then the entity's own type.
func (g *Graph) EffectiveType(e *Entity) *Type {
	if e.ParentID != nil {
		if parent := g.Entity(*e.ParentID); parent != nil {
			if t := g.Type(parent.TypeID); t != nil {
				return t
			}
		}
	}
	if e.SameAsID != nil {
		if target := g.Entity(*e.SameAsID); target != nil {
			if t := g.Type(target.TypeID); t != nil {
				return t
			}
		}
	}
	return g.Type(e.TypeID)
}

// ScopeNote returns the entity note, falling back to its type's note.
func (g *Graph) ScopeNote(e *Entity) string {
	if e.ScopeNote != "" {
		return e.ScopeNote
	}
	if t := g.Type(e.TypeID); t != nil {
		return t.ScopeNote
	}
	return ""
}

// Descendants returns every entity below id in the parent hierarchy.
func (g *Graph) Descendants(id int64) []*Entity {
	var out []*Entity
	seen := map[int64]struct{}{id: {}}
	queue := append([]int64(nil), g.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		if e := g.Entity(next); e != nil {
			out = append(out, e)
		}
		queue = append(queue, g.children[next]...)
	}
	return out
}

// SameAsChildren returns the aliases pointing at id.
func (g *Graph) SameAsChildren(id int64) []*Entity {
	return g.lookup(g.aliases[id])
}

// Ancestors walks the parent chain from e's parent to the root.
func (g *Graph) Ancestors(e *Entity) []*Entity {
	var out []*Entity
	seen := map[int64]struct{}{e.ID: {}}
	for e.ParentID != nil {
		if _, ok := seen[*e.ParentID]; ok {
			break
		}
		parent := g.Entity(*e.ParentID)
		if parent == nil {
			break
		}
		seen[parent.ID] = struct{}{}
		out = append(out, parent)
		e = parent
	}
	return out
}

// EntitiesOfType returns every entity whose own type is typeID.
func (g *Graph) EntitiesOfType(typeID int64) []*Entity {
	var out []*Entity
	for _, e := range g.entities {
		if e.TypeID == typeID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Graph) lookup(ids []int64) []*Entity {
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e := g.Entity(id); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
