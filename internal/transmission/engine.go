package transmission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"syndicate/internal/config"
	"syndicate/internal/content"
	"syndicate/internal/events"
	"syndicate/internal/export"
	"syndicate/internal/logging"
	"syndicate/internal/rules"
	"syndicate/internal/services"
)

var (
	// ErrReservedAction rejects manual moves into Created or Transmitted.
	ErrReservedAction = fmt.Errorf("%w: action is reserved for the transmitter", services.ErrValidation)
	// ErrNoUploadLocation is returned when a queue with scheduled items has nowhere to send them.
	ErrNoUploadLocation = fmt.Errorf("%w: transmission queue has no active upload location", services.ErrConfiguration)
)

// Store is the persistence the engine depends on.
type Store interface {
	GetTransmissionQ(ctx context.Context, id int64) (*Queue, error)
	ListTransmissionQs(ctx context.Context, filter QueueFilter) ([]Queue, error)
	TouchTransmissionQ(ctx context.Context, id int64, updatedOn, lastRunOn *time.Time) error
	MarkQueueTransmitted(ctx context.Context, id int64, at time.Time) error
	EntriesForPublications(ctx context.Context, publicationIDs []int64, createdSince *time.Time) ([]content.Entry, error)
	QEntries(ctx context.Context, qIDs, pubFilter []int64, since *time.Time) ([]QEntry, error)
	ListQs(ctx context.Context) ([]rules.Q, error)
	GetEntry(ctx context.Context, id int64) (*content.Entry, error)
	GetPublication(ctx context.Context, id int64) (*content.Publication, error)
	GetAccount(ctx context.Context, id int64) (*content.Account, error)
	GetOrCreateTxItem(ctx context.Context, queueID, entryID int64, qID *int64, action Action) (*Item, bool, error)
	ListTxItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	SetTxItemActions(ctx context.Context, ids []int64, action Action) (int64, error)
	MarkCreated(ctx context.Context, id int64, transmissionID string) error
	MarkTransmitted(ctx context.Context, id int64, transmissionID string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, transmissionID, message string) error
	UploadLocationsFor(ctx context.Context, queueID int64) ([]UploadLocation, error)
	TxStatusCounts(ctx context.Context, filter CountFilter) ([]StatusCount, error)
}

// Uploader delivers one rendered file.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
	Close() error
}

// UploaderFactory opens an uploader for a location.
type UploaderFactory interface {
	ForLocation(loc UploadLocation) (Uploader, error)
}

// Notifier receives transmission summaries.
type Notifier interface {
	NotifyTransmission(ctx context.Context, queue string, sent, failed int) error
}

// RefreshResult summarises one queue refresh.
type RefreshResult struct {
	QueueID    int64
	Direct     int
	FromQs     int
	Duplicates int
	Filtered   int
}

// Created is the number of new items added by the refresh.
func (r RefreshResult) Created() int {
	return r.Direct + r.FromQs
}

// TransmitResult summarises one transmission run.
type TransmitResult struct {
	QueueID int64
	BatchID string
	Sent    int
	Failed  int
	Files   []string
}

// Engine refreshes transmission queues and transmits their scheduled items.
type Engine struct {
	store       Store
	uploaders   UploaderFactory
	publisher   events.Publisher
	notifier    Notifier
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
	company     string
	contact     string
	concurrency int
}

// Option customises an Engine.
type Option func(*Engine)

// WithUploaders sets the upload location factory used by Transmit.
func WithUploaders(f UploaderFactory) Option {
	return func(e *Engine) { e.uploaders = f }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithNotifier sets the transmission summary notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg *config.Config, st Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		store:       st,
		publisher:   events.Noop{},
		logger:      logging.NewComponentLogger(logger, "transmission"),
		loc:         cfg.Location(),
		now:         time.Now,
		company:     cfg.Syndication.CompanyName,
		contact:     cfg.Syndication.Contact,
		concurrency: cfg.Workflow.RefreshConcurrency,
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh pulls new entries into a queue. Direct publication entries are
// scheduled immediately; Q entries follow the queue's auto-schedule setting.
// Existing (queue, entry) pairs are never altered, so repeated refreshes are
// idempotent. The watermark moves to the start of the current day.
func (e *Engine) Refresh(ctx context.Context, queueID int64) (RefreshResult, error) {
	result := RefreshResult{QueueID: queueID}
	q, err := e.store.GetTransmissionQ(ctx, queueID)
	if err != nil {
		return result, fmt.Errorf("load queue %d: %w", queueID, err)
	}
	ctx = services.WithQueueID(ctx, q.ID)
	logger := logging.WithContext(ctx, e.logger)

	var since *time.Time
	if !q.OverrideLastUpdated && q.UpdatedOn != nil {
		since = q.UpdatedOn
	}
	var keywords *rules.KeywordFilter
	if q.Kind == KindKeyword {
		kf := rules.NewKeywordFilter(q.BlackList, q.WhiteList)
		keywords = &kf
	}

	if len(q.SubPublications) > 0 {
		entries, err := e.store.EntriesForPublications(ctx, q.SubPublications, since)
		if err != nil {
			return result, fmt.Errorf("queue %s publication entries: %w", q.Slug, err)
		}
		for i := range entries {
			entry := &entries[i]
			if entry.ExcludesBuyer(q.BuyerID) || (keywords != nil && !keywords.Allows(candidate(entry))) {
				result.Filtered++
				continue
			}
			_, created, err := e.store.GetOrCreateTxItem(ctx, q.ID, entry.ID, nil, ActionScheduled)
			if err != nil {
				return result, fmt.Errorf("queue %s entry %d: %w", q.Slug, entry.ID, err)
			}
			if created {
				result.Direct++
			} else {
				result.Duplicates++
			}
		}
	}

	now := e.now()
	if len(q.Qs) > 0 {
		members, err := e.store.QEntries(ctx, q.Qs, q.FilterPublications, since)
		if err != nil {
			return result, fmt.Errorf("queue %s q entries: %w", q.Slug, err)
		}
		qs, err := e.queueQs(ctx, q.Qs)
		if err != nil {
			return result, fmt.Errorf("queue %s qs: %w", q.Slug, err)
		}
		refine := rules.ParseRefineTags(q.RefineTags)
		action := q.DefaultAction()
		for i := range members {
			entry := &members[i].Entry
			qID := acceptingQ(qs, members[i].QIDs, entry, now)
			if qID == nil || entry.ExcludesBuyer(q.BuyerID) ||
				(len(refine) > 0 && !rules.RefineMatch(refine, entry.Tags)) ||
				(keywords != nil && !keywords.Allows(candidate(entry))) {
				result.Filtered++
				continue
			}
			_, created, err := e.store.GetOrCreateTxItem(ctx, q.ID, entry.ID, qID, action)
			if err != nil {
				return result, fmt.Errorf("queue %s entry %d: %w", q.Slug, entry.ID, err)
			}
			if created {
				result.FromQs++
			} else {
				result.Duplicates++
			}
		}
	}

	watermark := StartOfDay(now, e.loc)
	if err := e.store.TouchTransmissionQ(ctx, q.ID, &watermark, &now); err != nil {
		return result, fmt.Errorf("queue %s watermark: %w", q.Slug, err)
	}

	logger.Info("queue refreshed",
		logging.String(logging.FieldEventType, "queue_refreshed"),
		logging.Int("direct", result.Direct),
		logging.Int("from_qs", result.FromQs),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("filtered", result.Filtered),
	)
	ev := events.New(events.QueueRefreshed)
	ev.QueueID = q.ID
	ev.Message = fmt.Sprintf("%d new, %d duplicate", result.Created(), result.Duplicates)
	e.publish(ctx, ev)
	return result, nil
}

// RefreshAll refreshes every active queue for which due returns true, with
// bounded concurrency. A failing queue does not stop the others; all errors
// are joined in the returned error.
func (e *Engine) RefreshAll(ctx context.Context, due func(Queue) bool) ([]RefreshResult, error) {
	queues, err := e.store.ListTransmissionQs(ctx, QueueFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	var (
		mu      sync.Mutex
		results []RefreshResult
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, q := range queues {
		if due != nil && !due(q) {
			continue
		}
		id := q.ID
		g.Go(func() error {
			res, err := e.Refresh(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// AddItems adds entries to a queue by hand. Only entries of the queue's
// subscribed publications are accepted; any action other than Pending or
// Scheduled becomes Pending. It returns the number of new items.
func (e *Engine) AddItems(ctx context.Context, queueID int64, entryIDs []int64, action Action) (int, error) {
	q, err := e.store.GetTransmissionQ(ctx, queueID)
	if err != nil {
		return 0, fmt.Errorf("load queue %d: %w", queueID, err)
	}
	if action == "" {
		action = q.DefaultAction()
	}
	action = NormalizeManualAction(action)

	added := 0
	for _, id := range entryIDs {
		entry, err := e.store.GetEntry(ctx, id)
		if err != nil {
			return added, fmt.Errorf("entry %d: %w", id, err)
		}
		if !q.SubscribesTo(entry.PublicationID) || !entry.Live() || entry.ExcludesBuyer(q.BuyerID) {
			continue
		}
		_, created, err := e.store.GetOrCreateTxItem(ctx, q.ID, entry.ID, nil, action)
		if err != nil {
			return added, fmt.Errorf("queue %s entry %d: %w", q.Slug, entry.ID, err)
		}
		if created {
			added++
		}
	}
	return added, nil
}

// SetAction moves items between Pending, Ignored, and Scheduled.
func (e *Engine) SetAction(ctx context.Context, itemIDs []int64, action Action) (int64, error) {
	switch action {
	case ActionPending, ActionIgnored, ActionScheduled:
	default:
		return 0, fmt.Errorf("set action %s: %w", action.Name(), ErrReservedAction)
	}
	return e.store.SetTxItemActions(ctx, itemIDs, action)
}

// StatusCounts reports item counts per publication and action.
func (e *Engine) StatusCounts(ctx context.Context, filter CountFilter) ([]StatusCount, error) {
	filter, err := NormalizeCountFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.store.TxStatusCounts(ctx, filter)
}

// Transmit renders every Scheduled item of the queue and uploads it to each
// active upload location. Items end Transmitted or Failed.
func (e *Engine) Transmit(ctx context.Context, queueID int64) (TransmitResult, error) {
	result := TransmitResult{QueueID: queueID}
	q, err := e.store.GetTransmissionQ(ctx, queueID)
	if err != nil {
		return result, fmt.Errorf("load queue %d: %w", queueID, err)
	}
	items, err := e.store.ListTxItems(ctx, ItemFilter{QueueID: q.ID, Actions: []Action{ActionScheduled}})
	if err != nil {
		return result, fmt.Errorf("queue %s scheduled items: %w", q.Slug, err)
	}
	if len(items) == 0 {
		return result, nil
	}
	if e.uploaders == nil {
		return result, fmt.Errorf("queue %s: %w", q.Slug, ErrNoUploadLocation)
	}
	locations, err := e.store.UploadLocationsFor(ctx, q.ID)
	if err != nil {
		return result, fmt.Errorf("queue %s upload locations: %w", q.Slug, err)
	}
	if len(locations) == 0 {
		return result, fmt.Errorf("queue %s: %w", q.Slug, ErrNoUploadLocation)
	}
	uploaders := make([]Uploader, 0, len(locations))
	defer func() {
		for _, up := range uploaders {
			_ = up.Close()
		}
	}()
	for _, loc := range locations {
		up, err := e.uploaders.ForLocation(loc)
		if err != nil {
			return result, services.Wrap(services.ErrConfiguration, "transmit", "upload location",
				fmt.Sprintf("location %d of queue %s", loc.ID, q.Slug), err)
		}
		uploaders = append(uploaders, up)
	}

	ctx = services.WithQueueID(ctx, q.ID)
	logger := logging.WithContext(ctx, e.logger)
	batch := export.NewBatch(q.FilePerPublication)
	result.BatchID = batch.ID
	lookup := newLookup(e.store)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		txID, name, data, err := e.render(ctx, lookup, q, item)
		if err != nil {
			if ctx.Err() != nil {
				return result, e.interrupted(ctx, logger, item)
			}
			e.fail(ctx, logger, &result, item, txID, err)
			continue
		}
		if err := e.store.MarkCreated(ctx, item.ID, txID); err != nil {
			return result, fmt.Errorf("mark created %d: %w", item.ID, err)
		}
		pub, _ := lookup.publication(ctx, item.PublicationID)
		uploadPath := batch.Add(pub.Slug, name, data)

		var uploadErr error
		for _, up := range uploaders {
			if err := up.Upload(ctx, uploadPath, data); err != nil {
				uploadErr = err
				break
			}
		}
		if uploadErr != nil {
			if ctx.Err() != nil {
				return result, e.interrupted(ctx, logger, item)
			}
			e.fail(ctx, logger, &result, item, txID, uploadErr)
			continue
		}
		if err := e.store.MarkTransmitted(context.WithoutCancel(ctx), item.ID, txID, e.now().UTC()); err != nil {
			return result, fmt.Errorf("mark transmitted %d: %w", item.ID, err)
		}
		result.Sent++
		result.Files = append(result.Files, uploadPath)
		ev := events.New(events.ItemTransmitted)
		ev.QueueID, ev.EntryID, ev.ItemID, ev.Message = q.ID, item.EntryID, item.ID, txID
		e.publish(ctx, ev)
	}

	if err := e.store.MarkQueueTransmitted(ctx, q.ID, e.now()); err != nil {
		logging.WarnWithContext(logger, "failed to record transmission time", "queue_touch_failed",
			logging.Error(err))
	}
	logger.Info("queue transmitted",
		logging.String(logging.FieldEventType, "queue_transmitted"),
		logging.String("batch_id", batch.ID),
		logging.Int("sent", result.Sent),
		logging.Int("failed", result.Failed),
	)
	if e.notifier != nil {
		if err := e.notifier.NotifyTransmission(ctx, q.Title, result.Sent, result.Failed); err != nil {
			logging.WarnWithContext(logger, "transmission notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operators were not told about this transmission"),
			)
		}
	}
	return result, nil
}

func (e *Engine) render(ctx context.Context, lookup *lookup, q *Queue, item Item) (string, string, []byte, error) {
	entry, err := e.store.GetEntry(ctx, item.EntryID)
	if err != nil {
		return "", "", nil, fmt.Errorf("entry %d: %w", item.EntryID, err)
	}
	pub, err := lookup.publication(ctx, item.PublicationID)
	if err != nil {
		return "", "", nil, err
	}
	account, err := lookup.account(ctx, pub.AccountID)
	if err != nil {
		return "", "", nil, err
	}
	txID := TransmissionID(q.Slug, pub.Slug, entry.Title, entry.ID)
	doc := export.Build(export.Source{
		Entry:          *entry,
		Publication:    *pub,
		Account:        *account,
		TransmissionID: txID,
		Contact:        e.contact,
		Company:        e.company,
		StripImages:    q.StripImages,
		Location:       e.loc,
	})
	data, err := export.Render(doc)
	if err != nil {
		return txID, "", nil, err
	}
	return txID, export.FileName(account.Slug, pub.Slug, entry.ID), data, nil
}

// interrupted puts an item back to Scheduled after ctx ended mid-run and
// returns the context error. The write outlives ctx.
func (e *Engine) interrupted(ctx context.Context, logger *slog.Logger, item Item) error {
	if _, err := e.store.SetTxItemActions(context.WithoutCancel(ctx), []int64{item.ID}, ActionScheduled); err != nil {
		logging.ErrorWithContext(logger, "failed to reschedule interrupted item", "item_reschedule_failed",
			logging.Int64("item_id", item.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the daemon reschedules it on its next start"),
		)
	}
	return ctx.Err()
}

func (e *Engine) fail(ctx context.Context, logger *slog.Logger, result *TransmitResult, item Item, txID string, cause error) {
	result.Failed++
	if err := e.store.MarkFailed(context.WithoutCancel(ctx), item.ID, txID, cause.Error()); err != nil {
		logging.ErrorWithContext(logger, "failed to record item failure", "item_mark_failed",
			logging.Int64("item_id", item.ID), logging.Error(err))
	}
	hint := "fix the entry or queue settings, then re-schedule the item"
	if services.Retryable(cause) {
		hint = "check the upload location and re-schedule the item"
	}
	logging.WarnWithContext(logger, "item transmission failed", "item_failed",
		logging.Int64("item_id", item.ID),
		logging.Int64(logging.FieldEntryID, item.EntryID),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "the buyer did not receive this entry"),
	)
	ev := events.New(events.ItemFailed)
	ev.QueueID, ev.EntryID, ev.ItemID, ev.Message = item.QueueID, item.EntryID, item.ID, cause.Error()
	e.publish(ctx, ev)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		logging.WarnWithContext(e.logger, "event publish failed", "event_publish_failed",
			logging.String("event", string(ev.Type)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "downstream consumers miss this event"),
		)
	}
}

func candidate(entry *content.Entry) rules.Candidate {
	return rules.Candidate{Title: entry.Title, Body: entry.Body, Tags: entry.Tags}
}

// queueQs loads the queue's Qs in queue order. Ids that no longer exist are
// skipped.
func (e *Engine) queueQs(ctx context.Context, ids []int64) ([]*rules.Q, error) {
	all, err := e.store.ListQs(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*rules.Q, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}
	out := make([]*rules.Q, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// acceptingQ picks the first queue Q, in queue order, that the entry belongs
// to and whose age window still admits it.
func acceptingQ(qs []*rules.Q, memberships []int64, entry *content.Entry, now time.Time) *int64 {
	for _, q := range qs {
		if containsID(memberships, q.ID) && q.Accepts(candidate(entry), entry.PubDate, now) {
			id := q.ID
			return &id
		}
	}
	return nil
}

// lookup caches publications and accounts during one transmission.
type lookup struct {
	store        Store
	publications map[int64]*content.Publication
	accounts     map[int64]*content.Account
}

func newLookup(st Store) *lookup {
	return &lookup{
		store:        st,
		publications: make(map[int64]*content.Publication),
		accounts:     make(map[int64]*content.Account),
	}
}

func (l *lookup) publication(ctx context.Context, id int64) (*content.Publication, error) {
	if p, ok := l.publications[id]; ok {
		return p, nil
	}
	p, err := l.store.GetPublication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("publication %d: %w", id, err)
	}
	l.publications[id] = p
	return p, nil
}

func (l *lookup) account(ctx context.Context, id int64) (*content.Account, error) {
	if a, ok := l.accounts[id]; ok {
		return a, nil
	}
	a, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}
	l.accounts[id] = a
	return a, nil
}
