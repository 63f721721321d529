package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"syndicate/internal/content"
	"syndicate/internal/editorial"
	"syndicate/internal/ingest"
	"syndicate/internal/store"
	"syndicate/internal/tagging"
	"syndicate/internal/testsupport"
	"syndicate/internal/transmission"
)

const goodFeed = `account: daily-news
publication: city
entries:
  - title: Council Approves Budget
    by_line: City Desk
    body: The council approved the budget on Tuesday.
    tags: [politics, budget]
    pub_date: 2024-03-14T08:00:00Z
    exclude_buyers: [rival]
    entities:
      - {type: Organization, name: City Council, relevance: 0.9}
  - title: Rain Expected
    by_line: Weather Desk
    body: Showers are expected this weekend.
    status: draft
`

type harness struct {
	st        *store.Store
	processor *ingest.Processor
	inbox     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	provider := testsupport.MustAccount(t, st, "daily-news", content.AccountProvider)
	testsupport.MustPublication(t, st, provider.ID, "city")
	testsupport.MustAccount(t, st, "rival", content.AccountBuyer)
	engine := transmission.NewEngine(cfg, st, nil)
	editor := editorial.NewService(cfg, st, engine, nil)
	tagger := tagging.NewService(st, nil, nil)
	return &harness{
		st:        st,
		processor: ingest.NewProcessor(cfg.Paths.InboxDir, st, editor, tagger, nil),
		inbox:     cfg.Paths.InboxDir,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestProcessFileLoadsEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.inbox, "batch-001.yaml")
	testsupport.WriteFile(t, path, goodFeed)

	res, err := h.processor.ProcessFile(ctx, path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if res.Status != store.FeedSuccess || res.Loaded != 2 || res.Rejected != 0 {
		t.Fatalf("result = %+v", res)
	}
	if exists(path) || !exists(filepath.Join(h.inbox, "processed", "batch-001.yaml")) {
		t.Fatalf("file was not moved to processed/")
	}

	entries, err := h.st.ListEntries(ctx, store.EntryFilter{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	var budget *content.Entry
	for i := range entries {
		if entries[i].Title == "Council Approves Budget" {
			budget = &entries[i]
		}
	}
	if budget == nil || budget.Status != content.StatusPublished || len(budget.ExcludeBuyers) != 1 {
		t.Fatalf("budget entry = %+v", budget)
	}
	tagged, err := h.st.HasEntityItems(ctx, budget.ID)
	if err != nil || !tagged {
		t.Fatalf("HasEntityItems = %v, %v", tagged, err)
	}
}

func TestProcessFileDuplicateChecksum(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := filepath.Join(h.inbox, "a.yaml")
	testsupport.WriteFile(t, first, goodFeed)
	if _, err := h.processor.ProcessFile(ctx, first); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	again := filepath.Join(h.inbox, "b.yaml")
	testsupport.WriteFile(t, again, goodFeed)
	res, err := h.processor.ProcessFile(ctx, again)
	if err != nil {
		t.Fatalf("ProcessFile duplicate: %v", err)
	}
	if res.Status != store.FeedDuplicate {
		t.Fatalf("status = %s, want duplicate", res.Status)
	}
	loads, err := h.st.ListFeedLoads(ctx, 0)
	if err != nil {
		t.Fatalf("ListFeedLoads: %v", err)
	}
	if len(loads) != 2 || loads[0].Status != store.FeedDuplicate {
		t.Fatalf("loads = %+v", loads)
	}
}

func TestProcessFileRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid yaml", "account: [unterminated"},
		{"unknown field", "account: daily-news\npublication: city\ncolour: red\nentries:\n  - title: X\n"},
		{"unknown publication", "account: daily-news\npublication: county\nentries:\n  - title: X\n    by_line: Y\n"},
		{"every entry invalid", "account: daily-news\npublication: city\nentries:\n  - title: Later\n    by_line: Y\n    pub_date: 2999-01-01T00:00:00Z\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			var observed []ingest.Result
			h.processor.Observe(func(r ingest.Result) { observed = append(observed, r) })
			path := filepath.Join(h.inbox, "feed.yaml")
			testsupport.WriteFile(t, path, tc.body)
			res, err := h.processor.ProcessFile(context.Background(), path)
			if err != nil {
				t.Fatalf("ProcessFile: %v", err)
			}
			if res.Status != store.FeedRejected || res.Message == "" {
				t.Fatalf("result = %+v, want rejected with message", res)
			}
			if len(observed) != 1 || observed[0].Status != store.FeedRejected {
				t.Fatalf("observed = %+v", observed)
			}
			if !exists(filepath.Join(h.inbox, "rejected", "feed.yaml")) {
				t.Fatalf("file was not moved to rejected/")
			}
		})
	}
}

func TestScanSkipsNonFeedFiles(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteFile(t, filepath.Join(h.inbox, "notes.txt"), "ignore me")
	testsupport.WriteFile(t, filepath.Join(h.inbox, ".partial.yaml"), "account: x")
	testsupport.WriteFile(t, filepath.Join(h.inbox, "feed.yml"), goodFeed)
	results, err := h.processor.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 1 || results[0].File != "feed.yml" {
		t.Fatalf("results = %+v", results)
	}
	if !exists(filepath.Join(h.inbox, "notes.txt")) {
		t.Fatalf("non-feed file was touched")
	}
}

func TestWatcherLoadsNewFiles(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := ingest.NewWatcher(h.processor, time.Hour, nil)
	w.SetSettle(50 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	testsupport.WriteFile(t, filepath.Join(h.inbox, "live.yaml"), goodFeed)

	target := filepath.Join(h.inbox, "processed", "live.yaml")
	deadline := time.Now().Add(5 * time.Second)
	for !exists(target) {
		if time.Now().After(deadline) {
			t.Fatalf("watcher did not process the file")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
