// Package store persists accounts, publications, entries, the entity graph,
// Qs, transmission queues, and their items in SQLite.
//
// The Store manages database connections, schema initialization, and the
// multi-row operations that must stay consistent: replacing an entry's Q
// membership, swapping entity items, and idempotent creation of transmission
// queue items keyed on (queue, entry).
//
// Schema changes bump the version in schema.go; operators rebuild the
// database from seed files to adopt the new schema.
package store
