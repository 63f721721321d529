// Package entity models the tagger-derived entity graph: typed entities with
// parent/child hierarchy, same-as aliasing, and the per-entry items that link
// entities to content with a relevance score.
//
// The rules here decide which entities and items are active. Graph is an
// in-memory snapshot used to resolve aliases, effective types, and ancestry
// without round-tripping to the store for every hop.
package entity
