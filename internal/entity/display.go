package entity

import "sort"

// DisplayGroup is the set of entity names shown for one type on an entry.
type DisplayGroup struct {
	Type  string
	Names []string
}

// GroupForDisplay groups the active items of an entry by effective type name.
// Each entity contributes its canonical display name plus the names of the
// canonical entity's ancestors, so tagging "Bombay" also surfaces
// "Maharashtra" and "India".
func GroupForDisplay(g *Graph, items []Item) []DisplayGroup {
	groups := map[string]map[string]struct{}{}
	add := func(e *Entity) {
		t := g.EffectiveType(e)
		if t == nil {
			return
		}
		if groups[t.Name] == nil {
			groups[t.Name] = map[string]struct{}{}
		}
		groups[t.Name][g.CanonicalName(e)] = struct{}{}
	}
	for _, item := range items {
		if !item.Active {
			continue
		}
		e := g.Entity(item.EntityID)
		if e == nil {
			continue
		}
		add(e)
		for _, ancestor := range g.Ancestors(g.Canonical(e)) {
			add(ancestor)
		}
	}

	out := make([]DisplayGroup, 0, len(groups))
	for typeName, names := range groups {
		group := DisplayGroup{Type: typeName}
		for name := range names {
			group.Names = append(group.Names, name)
		}
		sort.Strings(group.Names)
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
