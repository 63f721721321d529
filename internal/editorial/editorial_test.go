package editorial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"syndicate/internal/config"
	"syndicate/internal/content"
	"syndicate/internal/editorial"
	"syndicate/internal/events"
	"syndicate/internal/rules"
	"syndicate/internal/services"
	"syndicate/internal/store"
	"syndicate/internal/testsupport"
	"syndicate/internal/transmission"
)

type env struct {
	st       *store.Store
	svc      *editorial.Service
	recorder *testsupport.EventRecorder
	provider *content.Account
	pub      *content.Publication
	buyer    *content.Account
	loc      *time.Location
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	rec := &testsupport.EventRecorder{}
	engine := transmission.NewEngine(cfg, st, nil, transmission.WithPublisher(rec))
	provider := testsupport.MustAccount(t, st, "daily-news", content.AccountProvider)
	return &env{
		st:       st,
		svc:      editorial.NewService(cfg, st, engine, nil, editorial.WithPublisher(rec)),
		recorder: rec,
		provider: provider,
		pub:      testsupport.MustPublication(t, st, provider.ID, "daily-online"),
		buyer:    testsupport.MustAccount(t, st, "wire", content.AccountBuyer),
		loc:      cfg.Location(),
	}
}

func (e *env) draft(title string, tags ...string) *content.Entry {
	return &content.Entry{
		PublicationID: e.pub.ID,
		Title:         title,
		ByLine:        "Desk",
		Body:          "The council met on Tuesday.",
		Tags:          tags,
		Status:        content.StatusDraft,
		PubDate:       time.Now().UTC().Add(-time.Hour),
	}
}

func (e *env) itemAction(t *testing.T, queueID, entryID int64) (transmission.Action, bool) {
	t.Helper()
	items, err := e.st.ListTxItems(context.Background(), transmission.ItemFilter{QueueID: queueID, EntryIDs: []int64{entryID}})
	if err != nil {
		t.Fatalf("ListTxItems: %v", err)
	}
	if len(items) == 0 {
		return "", false
	}
	return items[0].Action, true
}

func TestSaveDraftComputesSlugAndQs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	politics := testsupport.MustQ(t, e.st, "politics", rules.TagRule{Kind: rules.KindAny, Value: "politics"})
	testsupport.MustQ(t, e.st, "sport", rules.TagRule{Kind: rules.KindAny, Value: "sport"})

	entry := e.draft("Council Élection Results", "Politics")
	res, err := e.svc.Save(ctx, entry)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if entry.Slug != "council-election-results" {
		t.Fatalf("slug = %q", entry.Slug)
	}
	if res.Published {
		t.Fatalf("draft reported as published")
	}
	if len(res.Qs) != 1 || res.Qs[0] != politics.ID {
		t.Fatalf("qs = %v, want [%d]", res.Qs, politics.ID)
	}
	stored, err := e.st.EntryQs(ctx, entry.ID)
	if err != nil {
		t.Fatalf("EntryQs: %v", err)
	}
	if len(stored) != 1 || stored[0] != politics.ID {
		t.Fatalf("stored qs = %v", stored)
	}
	if e.recorder.Count(events.EntrySaved) != 1 || e.recorder.Count(events.EntryPublished) != 0 {
		t.Fatalf("events = %+v", e.recorder.Events())
	}
}

func TestPublishFansOutToSubscribedQueues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := testsupport.MustAccount(t, e.st, "excluded-buyer", content.AccountBuyer)
	pending := testsupport.MustQueue(t, e.st, e.buyer.ID, "manual", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
	})
	auto := testsupport.MustQueue(t, e.st, e.buyer.ID, "auto", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
		q.AutoSchedule = true
	})
	keyword := testsupport.MustQueue(t, e.st, e.buyer.ID, "keyword", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
		q.Kind = transmission.KindKeyword
	})
	excluded := testsupport.MustQueue(t, e.st, other.ID, "excluded", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
	})
	unrelated := testsupport.MustQueue(t, e.st, e.buyer.ID, "unrelated", nil)

	entry := e.draft("Bridge Opens")
	entry.ExcludeBuyers = []int64{other.ID}
	if _, err := e.svc.Save(ctx, entry); err != nil {
		t.Fatalf("Save draft: %v", err)
	}
	entry.Status = content.StatusPublished
	res, err := e.svc.Save(ctx, entry)
	if err != nil {
		t.Fatalf("Save published: %v", err)
	}
	if !res.Published || res.Queued != 2 {
		t.Fatalf("result = %+v, want 2 queued", res)
	}

	cases := []struct {
		queue  *transmission.Queue
		want   transmission.Action
		exists bool
	}{
		{pending, transmission.ActionPending, true},
		{auto, transmission.ActionScheduled, true},
		{keyword, "", false},
		{excluded, "", false},
		{unrelated, "", false},
	}
	for _, tc := range cases {
		got, ok := e.itemAction(t, tc.queue.ID, entry.ID)
		if ok != tc.exists || got != tc.want {
			t.Fatalf("queue %s: action %q present %v, want %q present %v", tc.queue.Slug, got, ok, tc.want, tc.exists)
		}
	}
	if e.recorder.Count(events.EntryPublished) != 1 {
		t.Fatalf("published events = %d", e.recorder.Count(events.EntryPublished))
	}

	entry.Body = "Updated body."
	res, err = e.svc.Save(ctx, entry)
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if res.Published || res.Queued != 0 {
		t.Fatalf("re-save of a published entry fanned out again: %+v", res)
	}
}

func TestMergedWordsHoldEntryForReview(t *testing.T) {
	e := newEnv(t, testsupport.WithMergedWords("world", "cup"))
	ctx := context.Background()
	q := testsupport.MustQueue(t, e.st, e.buyer.ID, "feed", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
	})
	entry := e.draft("Final Tonight")
	entry.Body = "The worldcup final starts at eight."
	entry.Status = content.StatusPublished

	res, err := e.svc.Save(ctx, entry)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.MergedWord != "worldcup" || entry.Status != content.StatusPendingReview || entry.Reason != content.ReasonMergedWords {
		t.Fatalf("result = %+v status %s reason %s", res, entry.Status, entry.Reason)
	}
	if _, ok := e.itemAction(t, q.ID, entry.ID); ok {
		t.Fatalf("held entry was queued")
	}

	res, err = e.svc.Approve(ctx, entry.ID, "editor@example.com")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	approved := res.Entry
	if approved.Status != content.StatusPublished || approved.ApprovedOn == nil || approved.ApprovedBy != "editor@example.com" {
		t.Fatalf("approved entry = %+v", approved)
	}
	if approved.Reason != content.ReasonNone {
		t.Fatalf("reason after approval = %s", approved.Reason)
	}
	if _, ok := e.itemAction(t, q.ID, entry.ID); !ok {
		t.Fatalf("approved entry was not queued")
	}
}

func TestSaveValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	future := e.draft("Tomorrow's News")
	future.Status = content.StatusPublished
	future.PubDate = time.Now().UTC().Add(48 * time.Hour)
	_, err := e.svc.Save(ctx, future)
	if !errors.Is(err, content.ErrFuturePublish) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("future publish err = %v", err)
	}

	rejected := e.draft("Spiked")
	if _, err := e.svc.Save(ctx, rejected); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := e.svc.Reject(ctx, rejected.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	rejected.Status = content.StatusPublished
	_, err = e.svc.Save(ctx, rejected)
	if !errors.Is(err, content.ErrInvalidTransition) {
		t.Fatalf("rejected to published err = %v, want invalid transition", err)
	}
}

func TestDuplicateTitleSuppression(t *testing.T) {
	e := newEnv(t, testsupport.WithDuplicateRule(config.DuplicateRule{
		Buyer:      "wire",
		Sources:    []string{"daily-online"},
		Against:    []string{"daily-print"},
		WindowDays: 2,
	}))
	ctx := context.Background()
	printPub := testsupport.MustPublication(t, e.st, e.provider.ID, "daily-print")
	testsupport.MustEntry(t, e.st, printPub.ID, "Harbour Bridge Reopens")
	q := testsupport.MustQueue(t, e.st, e.buyer.ID, "wire-feed", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID, printPub.ID}
	})

	dup := e.draft("Harbour  Bridge Reopéns")
	dup.Status = content.StatusPublished
	res, err := e.svc.Save(ctx, dup)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(res.Suppressed) != 1 || res.Suppressed[0] != q.ID || res.Queued != 0 {
		t.Fatalf("result = %+v, want suppression", res)
	}

	fresh := e.draft("Ferry Timetable Changes")
	fresh.Status = content.StatusPublished
	res, err = e.svc.Save(ctx, fresh)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Queued != 1 || len(res.Suppressed) != 0 {
		t.Fatalf("result = %+v, want queued", res)
	}
}

func TestDuplicateWindowStartsAtMidnight(t *testing.T) {
	e := newEnv(t, testsupport.WithDuplicateRule(config.DuplicateRule{
		Buyer:      "wire",
		Sources:    []string{"daily-online"},
		Against:    []string{"daily-print"},
		WindowDays: 2,
	}))
	ctx := context.Background()
	printPub := testsupport.MustPublication(t, e.st, e.provider.ID, "daily-print")
	window := transmission.StartOfDay(time.Now(), e.loc).AddDate(0, 0, -2)
	testsupport.MustEntry(t, e.st, printPub.ID, "Dock Strike Ends",
		testsupport.WithStatus(content.StatusDraft), testsupport.WithCreatedOn(window.Add(time.Minute)))
	testsupport.MustEntry(t, e.st, printPub.ID, "Tram Line Opens",
		testsupport.WithCreatedOn(window.Add(-time.Minute)), testsupport.WithPubDate(window.Add(-time.Minute)))
	q := testsupport.MustQueue(t, e.st, e.buyer.ID, "wire-feed", func(q *transmission.Queue) {
		q.SubPublications = []int64{e.pub.ID}
	})

	for _, tc := range []struct {
		title      string
		suppressed bool
	}{
		{"Dock Strike Ends", true},
		{"Tram Line Opens", false},
	} {
		entry := e.draft(tc.title)
		entry.Status = content.StatusPublished
		res, err := e.svc.Save(ctx, entry)
		if err != nil {
			t.Fatalf("Save %q: %v", tc.title, err)
		}
		if got := len(res.Suppressed) == 1 && res.Suppressed[0] == q.ID; got != tc.suppressed {
			t.Fatalf("%q suppressed = %v, want %v (result %+v)", tc.title, got, tc.suppressed, res)
		}
	}
}

func TestSaveQRebuildsMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	recent := testsupport.MustEntry(t, e.st, e.pub.ID, "Rugby Final", testsupport.WithTags("rugby"))
	old := testsupport.MustEntry(t, e.st, e.pub.ID, "Old Rugby Match",
		testsupport.WithTags("rugby"), testsupport.WithPubDate(time.Now().UTC().AddDate(0, 0, -40)))
	other := testsupport.MustEntry(t, e.st, e.pub.ID, "Budget Speech", testsupport.WithTags("politics"))

	q := &rules.Q{Title: "Rugby", Slug: "rugby", Type: rules.QInternal, ItemsAge: 30,
		Rules: []rules.TagRule{{Kind: rules.KindAny, Value: "rugby"}}}
	members, err := e.svc.SaveQ(ctx, q)
	if err != nil {
		t.Fatalf("SaveQ: %v", err)
	}
	if members != 1 {
		t.Fatalf("members = %d, want 1", members)
	}
	for _, tc := range []struct {
		entry *content.Entry
		want  bool
	}{{recent, true}, {old, false}, {other, false}} {
		qs, err := e.st.EntryQs(ctx, tc.entry.ID)
		if err != nil {
			t.Fatalf("EntryQs: %v", err)
		}
		if got := len(qs) == 1 && qs[0] == q.ID; got != tc.want {
			t.Fatalf("%s member = %v, want %v", tc.entry.Title, got, tc.want)
		}
	}

	q.Rules = []rules.TagRule{{Kind: rules.KindAny, Value: "politics"}}
	if _, err := e.svc.SaveQ(ctx, q); err != nil {
		t.Fatalf("SaveQ update: %v", err)
	}
	if qs, _ := e.st.EntryQs(ctx, recent.ID); len(qs) != 0 {
		t.Fatalf("stale membership kept: %v", qs)
	}
	if qs, _ := e.st.EntryQs(ctx, other.ID); len(qs) != 1 {
		t.Fatalf("new membership missing: %v", qs)
	}
}
