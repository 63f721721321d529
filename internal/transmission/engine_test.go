package transmission_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"syndicate/internal/content"
	"syndicate/internal/delivery"
	"syndicate/internal/events"
	"syndicate/internal/rules"
	"syndicate/internal/services"
	"syndicate/internal/store"
	"syndicate/internal/testsupport"
	"syndicate/internal/transmission"
)

type fixture struct {
	st       *store.Store
	engine   *transmission.Engine
	recorder *testsupport.EventRecorder
	provider *content.Account
	buyer    *content.Account
	pub      *content.Publication
	outbox   string
}

func newFixture(t *testing.T, opts ...transmission.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	rec := &testsupport.EventRecorder{}
	provider := testsupport.MustAccount(t, st, "daily-news", content.AccountProvider)
	buyer := testsupport.MustAccount(t, st, "reader-co", content.AccountBuyer)
	pub := testsupport.MustPublication(t, st, provider.ID, "city")
	base := []transmission.Option{
		transmission.WithPublisher(rec),
		transmission.WithUploaders(delivery.NewFactory(cfg)),
	}
	return &fixture{
		st:       st,
		engine:   transmission.NewEngine(cfg, st, nil, append(base, opts...)...),
		recorder: rec,
		provider: provider,
		buyer:    buyer,
		pub:      pub,
		outbox:   cfg.Paths.OutboxDir,
	}
}

func (f *fixture) items(t *testing.T, queueID int64) map[int64]transmission.Item {
	t.Helper()
	items, err := f.st.ListTxItems(context.Background(), transmission.ItemFilter{QueueID: queueID})
	if err != nil {
		t.Fatalf("ListTxItems: %v", err)
	}
	out := make(map[int64]transmission.Item, len(items))
	for _, it := range items {
		out[it.EntryID] = it
	}
	return out
}

func TestRefreshSchedulesDirectEntriesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := testsupport.MustEntry(t, f.st, f.pub.ID, "Council Votes")
	testsupport.MustEntry(t, f.st, f.pub.ID, "Draft Story", testsupport.WithStatus(content.StatusDraft))
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "city-feed", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
		q.OverrideLastUpdated = true
	})

	res, err := f.engine.Refresh(ctx, q.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Direct != 1 || res.Duplicates != 0 {
		t.Fatalf("first refresh = %+v, want 1 direct", res)
	}
	items := f.items(t, q.ID)
	if got := items[first.ID].Action; got != transmission.ActionScheduled {
		t.Fatalf("direct entry action = %s, want scheduled", got)
	}
	if items[first.ID].ScheduledOn == nil {
		t.Fatalf("scheduled item missing scheduled_on")
	}

	res, err = f.engine.Refresh(ctx, q.ID)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if res.Created() != 0 || res.Duplicates != 1 {
		t.Fatalf("second refresh = %+v, want only duplicates", res)
	}
	if n := f.recorder.Count(events.QueueRefreshed); n != 2 {
		t.Fatalf("queue refreshed events = %d, want 2", n)
	}
}

func TestRefreshKeepsExistingItemActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := testsupport.MustEntry(t, f.st, f.pub.ID, "Harbour Reopens")
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "harbour", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
		q.OverrideLastUpdated = true
	})
	if _, err := f.engine.Refresh(ctx, q.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	item := f.items(t, q.ID)[entry.ID]
	if _, err := f.engine.SetAction(ctx, []int64{item.ID}, transmission.ActionIgnored); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if _, err := f.engine.Refresh(ctx, q.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := f.items(t, q.ID)[entry.ID].Action; got != transmission.ActionIgnored {
		t.Fatalf("action after refresh = %s, want ignored", got)
	}
}

func TestRefreshMovesWatermarkToStartOfDay(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	f := newFixture(t, transmission.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	old := now.Add(-72 * time.Hour)
	testsupport.MustEntry(t, f.st, f.pub.ID, "Old News", testsupport.WithCreatedOn(old), testsupport.WithPubDate(old))
	yesterday := now.Add(-24 * time.Hour)
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "watermark", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
		q.UpdatedOn = &yesterday
	})

	res, err := f.engine.Refresh(ctx, q.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Created() != 0 {
		t.Fatalf("refresh picked up entries older than the watermark: %+v", res)
	}
	stored, err := f.st.GetTransmissionQ(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetTransmissionQ: %v", err)
	}
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	if stored.UpdatedOn == nil || !stored.UpdatedOn.Equal(want) {
		t.Fatalf("watermark = %v, want %v", stored.UpdatedOn, want)
	}
	if stored.LastRunOn == nil || !stored.LastRunOn.Equal(now) {
		t.Fatalf("last run = %v, want %v", stored.LastRunOn, now)
	}

	stored.OverrideLastUpdated = true
	if err := f.st.SaveTransmissionQ(ctx, stored); err != nil {
		t.Fatalf("SaveTransmissionQ: %v", err)
	}
	res, err = f.engine.Refresh(ctx, q.ID)
	if err != nil {
		t.Fatalf("Refresh with override: %v", err)
	}
	if res.Direct != 1 {
		t.Fatalf("override refresh = %+v, want the old entry", res)
	}
}

func TestRefreshQEntries(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		mutate     func(*transmission.Queue)
		tags       []string
		body       string
		excluded   bool
		wantAction transmission.Action
		wantAdded  bool
	}{
		{name: "pending by default", tags: []string{"sport"}, wantAction: transmission.ActionPending, wantAdded: true},
		{
			name:       "auto schedule",
			mutate:     func(q *transmission.Queue) { q.AutoSchedule = true },
			tags:       []string{"sport"},
			wantAction: transmission.ActionScheduled,
			wantAdded:  true,
		},
		{
			name:      "refine tags reject",
			mutate:    func(q *transmission.Queue) { q.RefineTags = `"sport, cricket"` },
			tags:      []string{"sport"},
			wantAdded: false,
		},
		{
			name:       "refine tags accept",
			mutate:     func(q *transmission.Queue) { q.RefineTags = `"sport, cricket" rugby` },
			tags:       []string{"sport", "rugby"},
			wantAction: transmission.ActionPending,
			wantAdded:  true,
		},
		{
			name: "keyword black list",
			mutate: func(q *transmission.Queue) {
				q.Kind = transmission.KindKeyword
				q.BlackList = "gambling"
			},
			tags:      []string{"sport"},
			body:      "Odds from the gambling desk",
			wantAdded: false,
		},
		{name: "buyer excluded", tags: []string{"sport"}, excluded: true, wantAdded: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			sport := testsupport.MustQ(t, f.st, "sport", rules.TagRule{Kind: rules.KindAny, Value: "sport"})
			opts := []testsupport.EntryOption{testsupport.WithTags(tc.tags...)}
			if tc.body != "" {
				opts = append(opts, testsupport.WithBody(tc.body))
			}
			if tc.excluded {
				opts = append(opts, testsupport.WithExcludedBuyers(f.buyer.ID))
			}
			entry := testsupport.MustEntry(t, f.st, f.pub.ID, "Cup Final", opts...)
			if err := f.st.ReplaceEntryQs(ctx, entry.ID, []int64{sport.ID}); err != nil {
				t.Fatalf("ReplaceEntryQs: %v", err)
			}
			q := testsupport.MustQueue(t, f.st, f.buyer.ID, "sport-feed", func(q *transmission.Queue) {
				q.Qs = []int64{sport.ID}
				q.OverrideLastUpdated = true
				if tc.mutate != nil {
					tc.mutate(q)
				}
			})

			res, err := f.engine.Refresh(ctx, q.ID)
			if err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			item, ok := f.items(t, q.ID)[entry.ID]
			if ok != tc.wantAdded {
				t.Fatalf("item present = %v, want %v (result %+v)", ok, tc.wantAdded, res)
			}
			if !ok {
				if res.Filtered != 1 {
					t.Fatalf("filtered = %d, want 1", res.Filtered)
				}
				return
			}
			if item.Action != tc.wantAction {
				t.Fatalf("action = %s, want %s", item.Action, tc.wantAction)
			}
			if item.QID == nil || *item.QID != sport.ID {
				t.Fatalf("q id = %v, want %d", item.QID, sport.ID)
			}
		})
	}
}

func TestRefreshHonoursQAgeWindow(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, transmission.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	daily := testsupport.MustQ(t, f.st, "daily-sport", rules.TagRule{Kind: rules.KindAny, Value: "sport"})
	daily.ItemsAge = 1
	if err := f.st.SaveQ(ctx, daily); err != nil {
		t.Fatalf("SaveQ: %v", err)
	}
	quarterly := testsupport.MustQ(t, f.st, "quarterly-sport", rules.TagRule{Kind: rules.KindAny, Value: "sport"})
	quarterly.ItemsAge = 90
	if err := f.st.SaveQ(ctx, quarterly); err != nil {
		t.Fatalf("SaveQ: %v", err)
	}

	old := now.AddDate(0, 0, -60)
	stale := testsupport.MustEntry(t, f.st, f.pub.ID, "Season Review",
		testsupport.WithTags("sport"), testsupport.WithPubDate(old), testsupport.WithCreatedOn(old))
	fresh := testsupport.MustEntry(t, f.st, f.pub.ID, "Cup Final", testsupport.WithTags("sport"))
	for _, id := range []int64{stale.ID, fresh.ID} {
		if err := f.st.ReplaceEntryQs(ctx, id, []int64{daily.ID, quarterly.ID}); err != nil {
			t.Fatalf("ReplaceEntryQs: %v", err)
		}
	}

	dailyOnly := testsupport.MustQueue(t, f.st, f.buyer.ID, "daily-feed", func(q *transmission.Queue) {
		q.Qs = []int64{daily.ID}
		q.OverrideLastUpdated = true
	})
	res, err := f.engine.Refresh(ctx, dailyOnly.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	items := f.items(t, dailyOnly.ID)
	if _, ok := items[stale.ID]; ok {
		t.Fatalf("entry published 60 days ago queued through a 1 day Q (result %+v)", res)
	}
	if _, ok := items[fresh.ID]; !ok || res.FromQs != 1 || res.Filtered != 1 {
		t.Fatalf("result = %+v, want the fresh entry only", res)
	}

	both := testsupport.MustQueue(t, f.st, f.buyer.ID, "both-feed", func(q *transmission.Queue) {
		q.Qs = []int64{daily.ID, quarterly.ID}
		q.OverrideLastUpdated = true
	})
	if _, err := f.engine.Refresh(ctx, both.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	items = f.items(t, both.ID)
	if got := items[stale.ID].QID; got == nil || *got != quarterly.ID {
		t.Fatalf("stale entry q = %v, want %d", got, quarterly.ID)
	}
	if got := items[fresh.ID].QID; got == nil || *got != daily.ID {
		t.Fatalf("fresh entry q = %v, want %d", got, daily.ID)
	}
}

func TestRefreshAllCollectsResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.MustEntry(t, f.st, f.pub.ID, "Shared Story")
	var ids []int64
	for _, slug := range []string{"one", "two", "three"} {
		q := testsupport.MustQueue(t, f.st, f.buyer.ID, slug, func(q *transmission.Queue) {
			q.SubPublications = []int64{f.pub.ID}
			q.OverrideLastUpdated = true
		})
		ids = append(ids, q.ID)
	}
	testsupport.MustQueue(t, f.st, f.buyer.ID, "inactive", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
		q.Active = false
	})

	results, err := f.engine.RefreshAll(ctx, func(q transmission.Queue) bool { return q.Slug != "three" })
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.QueueID == ids[2] {
			t.Fatalf("queue filtered by due was refreshed")
		}
		if r.Direct != 1 {
			t.Fatalf("queue %d direct = %d, want 1", r.QueueID, r.Direct)
		}
	}
}

func TestAddItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testsupport.MustPublication(t, f.st, f.provider.ID, "county")
	inPub := testsupport.MustEntry(t, f.st, f.pub.ID, "City Budget")
	outPub := testsupport.MustEntry(t, f.st, other.ID, "County Fair")
	draft := testsupport.MustEntry(t, f.st, f.pub.ID, "Unfinished", testsupport.WithStatus(content.StatusDraft))
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "manual", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
	})

	added, err := f.engine.AddItems(ctx, q.ID, []int64{inPub.ID, outPub.ID, draft.ID}, transmission.ActionTransmitted)
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	items := f.items(t, q.ID)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got := items[inPub.ID].Action; got != transmission.ActionPending {
		t.Fatalf("coerced action = %s, want pending", got)
	}

	added, err = f.engine.AddItems(ctx, q.ID, []int64{inPub.ID}, transmission.ActionScheduled)
	if err != nil {
		t.Fatalf("AddItems again: %v", err)
	}
	if added != 0 {
		t.Fatalf("re-add created %d items", added)
	}
}

func TestSetActionRejectsReservedActions(t *testing.T) {
	f := newFixture(t)
	for _, action := range []transmission.Action{transmission.ActionCreated, transmission.ActionTransmitted, transmission.ActionFailed} {
		_, err := f.engine.SetAction(context.Background(), []int64{1}, action)
		if !errors.Is(err, transmission.ErrReservedAction) {
			t.Fatalf("SetAction(%s) err = %v, want ErrReservedAction", action, err)
		}
		if services.Classify(err) != "validation" {
			t.Fatalf("SetAction(%s) classified as %v", action, services.Classify(err))
		}
	}
}

func TestTransmitWritesScheduledItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sent := testsupport.MustEntry(t, f.st, f.pub.ID, "Bridge Opens", testsupport.WithBody(`<p>Text</p><img src="x.jpg">`))
	pending := testsupport.MustEntry(t, f.st, f.pub.ID, "Later Story")
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "wire", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
		q.StripImages = true
	})
	if err := f.st.SaveUploadLocation(ctx, &transmission.UploadLocation{QueueID: q.ID, Location: "wire", Active: true}); err != nil {
		t.Fatalf("SaveUploadLocation: %v", err)
	}
	if _, err := f.engine.AddItems(ctx, q.ID, []int64{sent.ID}, transmission.ActionScheduled); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	if _, err := f.engine.AddItems(ctx, q.ID, []int64{pending.ID}, transmission.ActionPending); err != nil {
		t.Fatalf("AddItems: %v", err)
	}

	res, err := f.engine.Transmit(ctx, q.ID)
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if res.Sent != 1 || res.Failed != 0 || len(res.Files) != 1 {
		t.Fatalf("result = %+v, want one sent file", res)
	}
	data, err := os.ReadFile(filepath.Join(f.outbox, "wire", res.Files[0]))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if !strings.Contains(string(data), "Bridge Opens") || strings.Contains(string(data), "<img") {
		t.Fatalf("unexpected document:\n%s", data)
	}

	items := f.items(t, q.ID)
	if got := items[sent.ID]; got.Action != transmission.ActionTransmitted || got.TransmittedOn == nil || got.TransmissionID == "" {
		t.Fatalf("sent item = %+v", got)
	}
	if got := items[pending.ID].Action; got != transmission.ActionPending {
		t.Fatalf("pending item action = %s", got)
	}
	if n := f.recorder.Count(events.ItemTransmitted); n != 1 {
		t.Fatalf("transmitted events = %d, want 1", n)
	}
}

type failingFactory struct{}

func (failingFactory) ForLocation(transmission.UploadLocation) (transmission.Uploader, error) {
	return failingUploader{}, nil
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

func (failingUploader) Close() error { return nil }

type notifierStub struct {
	mu           sync.Mutex
	sent, failed int
	calls        int
}

func (n *notifierStub) NotifyTransmission(_ context.Context, _ string, sent, failed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.sent, n.failed = sent, failed
	return nil
}

func TestTransmitMarksFailedUploads(t *testing.T) {
	notifier := &notifierStub{}
	f := newFixture(t, transmission.WithUploaders(failingFactory{}), transmission.WithNotifier(notifier))
	ctx := context.Background()
	entry := testsupport.MustEntry(t, f.st, f.pub.ID, "Storm Warning")
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "ftp-feed", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
	})
	if err := f.st.SaveUploadLocation(ctx, &transmission.UploadLocation{QueueID: q.ID, Kind: transmission.LocationFTP, Location: "ftp://example.invalid/in", Active: true}); err != nil {
		t.Fatalf("SaveUploadLocation: %v", err)
	}
	if _, err := f.engine.AddItems(ctx, q.ID, []int64{entry.ID}, transmission.ActionScheduled); err != nil {
		t.Fatalf("AddItems: %v", err)
	}

	res, err := f.engine.Transmit(ctx, q.ID)
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if res.Sent != 0 || res.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", res)
	}
	item := f.items(t, q.ID)[entry.ID]
	if item.Action != transmission.ActionFailed || !strings.Contains(item.Error, "connection refused") {
		t.Fatalf("failed item = %+v", item)
	}
	if notifier.calls != 1 || notifier.failed != 1 {
		t.Fatalf("notifier = %+v", notifier)
	}
	if n := f.recorder.Count(events.ItemFailed); n != 1 {
		t.Fatalf("failed events = %d, want 1", n)
	}
}

type cancellingFactory struct {
	cancel context.CancelFunc
	calls  *int
}

func (f cancellingFactory) ForLocation(transmission.UploadLocation) (transmission.Uploader, error) {
	return cancellingUploader(f), nil
}

// cancellingUploader cancels the run during its first upload only.
type cancellingUploader cancellingFactory

func (u cancellingUploader) Upload(ctx context.Context, _ string, _ []byte) error {
	*u.calls++
	if *u.calls == 1 {
		u.cancel()
		return ctx.Err()
	}
	return nil
}

func (cancellingUploader) Close() error { return nil }

func TestTransmitInterruptedLeavesItemScheduled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	notifier := &notifierStub{}
	f := newFixture(t,
		transmission.WithUploaders(cancellingFactory{cancel: cancel, calls: &calls}),
		transmission.WithNotifier(notifier))
	entry := testsupport.MustEntry(t, f.st, f.pub.ID, "Late Edition")
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "late", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
	})
	if err := f.st.SaveUploadLocation(context.Background(), &transmission.UploadLocation{QueueID: q.ID, Location: "late", Active: true}); err != nil {
		t.Fatalf("SaveUploadLocation: %v", err)
	}
	if _, err := f.engine.AddItems(context.Background(), q.ID, []int64{entry.ID}, transmission.ActionScheduled); err != nil {
		t.Fatalf("AddItems: %v", err)
	}

	res, err := f.engine.Transmit(ctx, q.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Transmit err = %v, want context.Canceled", err)
	}
	if res.Failed != 0 || res.Sent != 0 {
		t.Fatalf("result = %+v, want nothing counted", res)
	}
	if got := f.items(t, q.ID)[entry.ID].Action; got != transmission.ActionScheduled {
		t.Fatalf("item action after interruption = %s, want scheduled", got)
	}
	if notifier.calls != 0 {
		t.Fatalf("notifier called %d times for an interrupted run", notifier.calls)
	}

	res, err = f.engine.Transmit(context.Background(), q.ID)
	if err != nil || res.Sent != 1 {
		t.Fatalf("second Transmit = %+v, %v; want the item sent", res, err)
	}
}

func TestTransmitRequiresUploadLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := testsupport.MustEntry(t, f.st, f.pub.ID, "No Destination")
	q := testsupport.MustQueue(t, f.st, f.buyer.ID, "nowhere", func(q *transmission.Queue) {
		q.SubPublications = []int64{f.pub.ID}
	})
	if _, err := f.engine.AddItems(ctx, q.ID, []int64{entry.ID}, transmission.ActionScheduled); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	_, err := f.engine.Transmit(ctx, q.ID)
	if !errors.Is(err, transmission.ErrNoUploadLocation) {
		t.Fatalf("Transmit err = %v, want ErrNoUploadLocation", err)
	}
	if got := f.items(t, q.ID)[entry.ID].Action; got != transmission.ActionScheduled {
		t.Fatalf("item action = %s, want still scheduled", got)
	}
}

func TestStatusCountsValidatesFilter(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.StatusCounts(context.Background(), transmission.CountFilter{Field: "modified"})
	if services.Classify(err) != "validation" {
		t.Fatalf("StatusCounts err = %v, want validation", err)
	}
	now := time.Now()
	_, err = f.engine.StatusCounts(context.Background(), transmission.CountFilter{Range: &transmission.DateRange{From: now, To: now}})
	if services.Classify(err) != "validation" {
		t.Fatalf("empty range err = %v, want validation", err)
	}
}
