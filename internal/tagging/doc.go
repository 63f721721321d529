// Package tagging attaches tagger output to entries as entity items and keeps
// item active flags consistent when entities or entity types change.
package tagging
