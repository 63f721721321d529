// Package rules implements the Q rule engine: saved tag filters that decide
// which entries belong to which Q, plus the refine-tag and keyword filters
// that transmission queues layer on top.
package rules
