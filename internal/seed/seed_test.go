package seed_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"syndicate/internal/config"
	"syndicate/internal/content"
	"syndicate/internal/editorial"
	"syndicate/internal/seed"
	"syndicate/internal/services"
	"syndicate/internal/store"
	"syndicate/internal/tagging"
	"syndicate/internal/testsupport"
	"syndicate/internal/transmission"
)

func apply(t *testing.T, st *store.Store, svc seed.Services, f *seed.File) seed.Summary {
	t.Helper()
	sum, err := seed.Apply(context.Background(), st, svc, f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return sum
}

func newServices(cfg *config.Config, st *store.Store) seed.Services {
	return seed.Services{
		Qs:    editorial.NewService(cfg, st, transmission.NewEngine(cfg, st, nil), nil),
		Types: tagging.NewService(st, nil, nil),
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newServices(cfg, st)
	ctx := context.Background()

	f, err := seed.Load(filepath.Join("testdata", "seed.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sum := apply(t, st, svc, f)
	want := seed.Summary{Accounts: 2, Publications: 2, EntityTypes: 2, Qs: 1, Queues: 1, Uploads: 2}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
	before, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	apply(t, st, svc, f)
	after, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for table, n := range before {
		if after[table] != n {
			t.Fatalf("%s count changed from %d to %d on re-apply", table, n, after[table])
		}
	}

	buyer, err := st.AccountBySlug(ctx, "wire")
	if err != nil {
		t.Fatalf("AccountBySlug: %v", err)
	}
	if buyer.Kind != content.AccountBuyer || buyer.Email != "ops@wire.example" {
		t.Fatalf("buyer = %+v", buyer)
	}
	q, err := st.TransmissionQBySlug(ctx, buyer.ID, "wire-daily")
	if err != nil {
		t.Fatalf("TransmissionQBySlug: %v", err)
	}
	if !q.AutoSchedule || q.LoadFrequency != "0 * * * *" || len(q.SubPublications) != 1 || len(q.FilterPublications) != 1 || len(q.Qs) != 1 {
		t.Fatalf("queue = %+v", q)
	}
	locs, err := st.UploadLocationsFor(ctx, q.ID)
	if err != nil {
		t.Fatalf("UploadLocationsFor: %v", err)
	}
	if len(locs) != 2 || locs[1].Kind != transmission.LocationFTP {
		t.Fatalf("upload locations = %+v", locs)
	}
	politics, err := st.QBySlug(ctx, "politics")
	if err != nil {
		t.Fatalf("QBySlug: %v", err)
	}
	if politics.ItemsAge != 30 || len(politics.Rules) != 2 {
		t.Fatalf("q = %+v", politics)
	}
}

func TestApplyUpdatesExistingRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newServices(cfg, st)
	ctx := context.Background()
	f, err := seed.Parse([]byte("accounts:\n  - {slug: daily-news, kind: provider, title: Old}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	apply(t, st, svc, f)
	f.Accounts[0].Title = "New"
	apply(t, st, svc, f)
	acct, err := st.AccountBySlug(ctx, "daily-news")
	if err != nil {
		t.Fatalf("AccountBySlug: %v", err)
	}
	if acct.Title != "New" {
		t.Fatalf("title = %q, want New", acct.Title)
	}

	f.Accounts[0].Kind = "buyer"
	_, err = seed.Apply(ctx, st, svc, f)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("kind change err = %v, want conflict", err)
	}
}

func TestApplyEntityTypeThresholdRecomputesItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newServices(cfg, st)
	ctx := context.Background()

	f, err := seed.Parse([]byte("entity_types:\n  - {name: Person, relevance_threshold: 0.3}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	apply(t, st, svc, f)

	acct := testsupport.MustAccount(t, st, "daily-news", content.AccountProvider)
	pub := testsupport.MustPublication(t, st, acct.ID, "city")
	entry := testsupport.MustEntry(t, st, pub.ID, "Mayor Opens Harbour")
	tagger := tagging.NewService(st, nil, nil)
	if _, err := tagger.Ingest(ctx, entry.ID, []tagging.Tag{{Type: "Person", Name: "Ada Park", Relevance: 0.5}}, false); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f.EntityTypes[0].RelevanceThreshold = 0.6
	apply(t, st, svc, f)
	items, err := st.EntityItemsForEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("EntityItemsForEntry: %v", err)
	}
	if len(items) != 1 || items[0].Active {
		t.Fatalf("items = %+v, want one inactive item", items)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := seed.Parse([]byte("acounts: []\n"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Parse err = %v, want validation", err)
	}
}

func TestApplyRejectsBadReferences(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := newServices(cfg, st)
	f, err := seed.Parse([]byte(`accounts:
  - {slug: wire, kind: buyer}
transmission_queues:
  - {buyer: wire, slug: feed, publications: [nowhere]}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := seed.Apply(context.Background(), st, svc, f); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Apply err = %v, want validation", err)
	}
}
