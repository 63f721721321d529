// Package textutil provides text normalisation helpers shared by the
// editorial, rules, and export packages.
//
// The primary use cases are:
//   - Folding headlines to plain ASCII for duplicate detection
//   - Building URL slugs for entries
//   - Splitting comma-separated tag and keyword lists
//
// Folding decomposes text (NFKD), drops combining marks, and discards any
// remaining non-ASCII runes.
package textutil
