package testsupport

import (
	"context"
	"testing"
	"time"

	"syndicate/internal/config"
	"syndicate/internal/content"
	"syndicate/internal/rules"
	"syndicate/internal/store"
	"syndicate/internal/transmission"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustAccount creates an active account.
func MustAccount(t testing.TB, st *store.Store, slug string, kind content.AccountKind) *content.Account {
	t.Helper()

	a := &content.Account{Slug: slug, Title: slug, Kind: kind, Active: true}
	if err := st.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount %s: %v", slug, err)
	}
	return a
}

// MustPublication creates an active publication owned by accountID.
func MustPublication(t testing.TB, st *store.Store, accountID int64, slug string) *content.Publication {
	t.Helper()

	p := &content.Publication{AccountID: accountID, Slug: slug, Title: slug, Active: true}
	if err := st.CreatePublication(context.Background(), p); err != nil {
		t.Fatalf("CreatePublication %s: %v", slug, err)
	}
	return p
}

// EntryOption customizes fixture entries.
type EntryOption func(*content.Entry)

// WithTags sets the entry tags.
func WithTags(tags ...string) EntryOption {
	return func(e *content.Entry) { e.Tags = tags }
}

// WithStatus sets the entry status.
func WithStatus(status content.Status) EntryOption {
	return func(e *content.Entry) { e.Status = status }
}

// WithBody sets the entry body.
func WithBody(body string) EntryOption {
	return func(e *content.Entry) { e.Body = body }
}

// WithCreatedOn pins the creation timestamp.
func WithCreatedOn(at time.Time) EntryOption {
	return func(e *content.Entry) {
		e.CreatedOn = at
		e.ModifiedOn = at
	}
}

// WithPubDate pins the publication date.
func WithPubDate(at time.Time) EntryOption {
	return func(e *content.Entry) { e.PubDate = at }
}

// WithExcludedBuyers lists buyers that must not receive the entry.
func WithExcludedBuyers(ids ...int64) EntryOption {
	return func(e *content.Entry) { e.ExcludeBuyers = ids }
}

// MustEntry stores a published entry with the given title. The slug is
// derived from the title.
func MustEntry(t testing.TB, st *store.Store, publicationID int64, title string, opts ...EntryOption) *content.Entry {
	t.Helper()

	e := &content.Entry{
		PublicationID: publicationID,
		Title:         title,
		ByLine:        "Staff Reporter",
		Body:          "Body of " + title,
		Status:        content.StatusPublished,
		PubDate:       time.Now().UTC().Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.EnsureSlug()
	if err := st.SaveEntry(context.Background(), e); err != nil {
		t.Fatalf("SaveEntry %q: %v", title, err)
	}
	return e
}

// MustQ stores a Q with the given rules.
func MustQ(t testing.TB, st *store.Store, slug string, tagRules ...rules.TagRule) *rules.Q {
	t.Helper()

	q := &rules.Q{Title: slug, Slug: slug, Type: rules.QInternal, ItemsAge: rules.DefaultItemsAge, Rules: tagRules}
	if err := st.SaveQ(context.Background(), q); err != nil {
		t.Fatalf("SaveQ %s: %v", slug, err)
	}
	return q
}

// MustQueue stores an active standard transmission queue for buyerID. mutate
// may adjust fields before the insert.
func MustQueue(t testing.TB, st *store.Store, buyerID int64, slug string, mutate func(*transmission.Queue)) *transmission.Queue {
	t.Helper()

	q := &transmission.Queue{
		Title:   slug,
		Slug:    slug,
		BuyerID: buyerID,
		Active:  true,
		Kind:    transmission.KindStandard,
	}
	if mutate != nil {
		mutate(q)
	}
	if err := st.SaveTransmissionQ(context.Background(), q); err != nil {
		t.Fatalf("SaveTransmissionQ %s: %v", slug, err)
	}
	return q
}
