package editorial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"syndicate/internal/config"
	"syndicate/internal/content"
	"syndicate/internal/events"
	"syndicate/internal/logging"
	"syndicate/internal/rules"
	"syndicate/internal/services"
	"syndicate/internal/store"
	"syndicate/internal/textutil"
	"syndicate/internal/transmission"
)

// Store is the persistence the editorial service depends on.
type Store interface {
	GetEntry(ctx context.Context, id int64) (*content.Entry, error)
	SaveEntry(ctx context.Context, e *content.Entry) error
	ListEntries(ctx context.Context, filter store.EntryFilter) ([]content.Entry, error)
	GetPublication(ctx context.Context, id int64) (*content.Publication, error)
	ListPublications(ctx context.Context, accountID int64) ([]content.Publication, error)
	GetAccount(ctx context.Context, id int64) (*content.Account, error)
	RecentTitles(ctx context.Context, publicationIDs []int64, since time.Time) ([]string, error)
	ListQs(ctx context.Context) ([]rules.Q, error)
	SaveQ(ctx context.Context, q *rules.Q) error
	EntryQs(ctx context.Context, entryID int64) ([]int64, error)
	ReplaceEntryQs(ctx context.Context, entryID int64, qIDs []int64) error
	ListTransmissionQs(ctx context.Context, filter transmission.QueueFilter) ([]transmission.Queue, error)
}

// QueueAdder adds entries to transmission queues.
type QueueAdder interface {
	AddItems(ctx context.Context, queueID int64, entryIDs []int64, action transmission.Action) (int, error)
}

// SaveResult reports the side effects of a save.
type SaveResult struct {
	Entry *content.Entry
	// MergedWord is the glued token that forced the entry into review.
	MergedWord string
	Qs         []int64
	Published  bool
	// Queued counts new transmission items created by publishing.
	Queued int
	// Suppressed lists queues skipped by duplicate-title rules.
	Suppressed []int64
}

// Service saves entries and applies their side effects.
type Service struct {
	store          Store
	adder          QueueAdder
	publisher      events.Publisher
	logger         *slog.Logger
	mergedWords    []string
	duplicateRules []config.DuplicateRule
	loc            *time.Location
	now            func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewService builds an editorial service.
func NewService(cfg *config.Config, st Store, adder QueueAdder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		store:          st,
		adder:          adder,
		publisher:      events.Noop{},
		logger:         logging.NewComponentLogger(logger, "editorial"),
		mergedWords:    cfg.Syndication.MergedWords,
		duplicateRules: cfg.Syndication.DuplicateRules,
		loc:            cfg.Location(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save validates and stores an entry, refreshes its Q membership, and, when
// the entry has just become published, adds it to subscribing queues.
func (s *Service) Save(ctx context.Context, e *content.Entry) (SaveResult, error) {
	return s.save(ctx, e, false)
}

// Approve publishes an entry on behalf of an editor. The merged-word check is
// waived because the editor has reviewed the body.
func (s *Service) Approve(ctx context.Context, id int64, user string) (SaveResult, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return SaveResult{}, fmt.Errorf("approve entry %d: %w", id, err)
	}
	now := s.now().UTC()
	e.Status = content.StatusPublished
	e.Reason = content.ReasonNone
	e.ApprovedOn = &now
	e.ApprovedBy = user
	return s.save(ctx, e, true)
}

// Reject moves an entry to Rejected.
func (s *Service) Reject(ctx context.Context, id int64) (SaveResult, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return SaveResult{}, fmt.Errorf("reject entry %d: %w", id, err)
	}
	e.Status = content.StatusRejected
	return s.save(ctx, e, false)
}

func (s *Service) save(ctx context.Context, e *content.Entry, approved bool) (SaveResult, error) {
	result := SaveResult{Entry: e}
	if e == nil {
		return result, fmt.Errorf("%w: entry is required", services.ErrValidation)
	}
	if !e.Status.Valid() {
		return result, fmt.Errorf("%w: unknown status %d", services.ErrValidation, e.Status)
	}
	previous := content.StatusDraft
	if e.ID != 0 {
		stored, err := s.store.GetEntry(ctx, e.ID)
		if err != nil {
			return result, fmt.Errorf("load entry %d: %w", e.ID, err)
		}
		previous = stored.Status
		if e.CreatedOn.IsZero() {
			e.CreatedOn = stored.CreatedOn
		}
	}
	if !content.CanTransition(previous, e.Status) {
		return result, fmt.Errorf("%w: %w: %s to %s", services.ErrValidation, content.ErrInvalidTransition, previous, e.Status)
	}

	now := s.now().UTC()
	if !approved && e.Status == content.StatusPublished {
		result.MergedWord = e.ApplyMergedWordCheck(s.mergedWords)
	}
	if err := e.ValidatePublish(now); err != nil {
		return result, fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	e.EnsureSlug()
	e.ModifiedOn = now
	if err := s.store.SaveEntry(ctx, e); err != nil {
		return result, err
	}

	qs, err := s.refreshQs(ctx, e)
	if err != nil {
		return result, err
	}
	result.Qs = qs

	ctx = services.WithEntryID(ctx, e.ID)
	logger := logging.WithContext(ctx, s.logger)
	if result.MergedWord != "" {
		logging.WarnWithContext(logger, "entry held for review", "entry_merged_word",
			logging.String("token", result.MergedWord),
			logging.String(logging.FieldErrorHint, "fix the glued words or approve the entry"),
		)
	}
	ev := events.New(events.EntrySaved)
	ev.EntryID = e.ID
	ev.Message = e.Status.String()
	s.publish(ctx, ev)

	if previous == content.StatusPublished || e.Status != content.StatusPublished {
		return result, nil
	}
	result.Published = true
	queued, suppressed, err := s.addToTransmissionQueues(ctx, e)
	result.Queued, result.Suppressed = queued, suppressed
	if err != nil {
		return result, err
	}
	logger.Info("entry published",
		logging.String(logging.FieldEventType, "entry_published"),
		logging.Int("queued", queued),
		logging.Int("suppressed", len(suppressed)),
	)
	ev = events.New(events.EntryPublished)
	ev.EntryID = e.ID
	ev.Message = fmt.Sprintf("%d queued", queued)
	s.publish(ctx, ev)
	return result, nil
}

// refreshQs recomputes which Qs the entry belongs to.
func (s *Service) refreshQs(ctx context.Context, e *content.Entry) ([]int64, error) {
	qs, err := s.store.ListQs(ctx)
	if err != nil {
		return nil, err
	}
	c := candidate(e)
	var matched []int64
	for i := range qs {
		if qs[i].Matches(c) {
			matched = append(matched, qs[i].ID)
		}
	}
	if err := s.store.ReplaceEntryQs(ctx, e.ID, matched); err != nil {
		return nil, err
	}
	return matched, nil
}

// addToTransmissionQueues offers a newly published entry to every active
// standard queue subscribed to its publication.
func (s *Service) addToTransmissionQueues(ctx context.Context, e *content.Entry) (int, []int64, error) {
	queues, err := s.store.ListTransmissionQs(ctx, transmission.QueueFilter{ActiveOnly: true, Kind: transmission.KindStandard})
	if err != nil {
		return 0, nil, err
	}
	pub, err := s.store.GetPublication(ctx, e.PublicationID)
	if err != nil {
		return 0, nil, fmt.Errorf("publication %d: %w", e.PublicationID, err)
	}
	dup := newDuplicateCheck(s, e, pub)

	var (
		queued     int
		suppressed []int64
		errs       []error
	)
	for i := range queues {
		q := &queues[i]
		if !q.SubscribesTo(e.PublicationID) || e.ExcludesBuyer(q.BuyerID) {
			continue
		}
		isDup, err := dup.forBuyer(ctx, q.BuyerID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if isDup {
			suppressed = append(suppressed, q.ID)
			s.logger.Info("duplicate title suppressed",
				logging.String(logging.FieldEventType, "duplicate_suppressed"),
				logging.Int64(logging.FieldEntryID, e.ID),
				logging.Int64(logging.FieldQueueID, q.ID),
			)
			continue
		}
		n, err := s.adder.AddItems(ctx, q.ID, []int64{e.ID}, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Slug, err))
			continue
		}
		queued += n
	}
	return queued, suppressed, errors.Join(errs...)
}

// SaveQ stores a Q and rebuilds its membership over live entries inside the
// Q's window. It returns the number of member entries.
func (s *Service) SaveQ(ctx context.Context, q *rules.Q) (int, error) {
	if err := s.store.SaveQ(ctx, q); err != nil {
		return 0, err
	}
	now := s.now().UTC()
	cutoff := q.Cutoff(now)
	entries, err := s.store.ListEntries(ctx, store.EntryFilter{
		Statuses:     []content.Status{content.StatusPublished},
		PubDateSince: &cutoff,
	})
	if err != nil {
		return 0, err
	}
	members := 0
	for i := range entries {
		e := &entries[i]
		current, err := s.store.EntryQs(ctx, e.ID)
		if err != nil {
			return members, err
		}
		has := slices.Contains(current, q.ID)
		want := q.Accepts(candidate(e), e.PubDate, now)
		if want {
			members++
		}
		if has == want {
			continue
		}
		next := slices.DeleteFunc(slices.Clone(current), func(id int64) bool { return id == q.ID })
		if want {
			next = append(next, q.ID)
		}
		if err := s.store.ReplaceEntryQs(ctx, e.ID, next); err != nil {
			return members, err
		}
	}
	s.logger.Info("q membership rebuilt",
		logging.String(logging.FieldEventType, "q_rebuilt"),
		logging.String("q", q.Slug),
		logging.Int("members", members),
	)
	return members, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logging.WarnWithContext(s.logger, "event publish failed", "event_publish_failed",
			logging.String("event", string(ev.Type)),
			logging.Error(err),
		)
	}
}

func candidate(e *content.Entry) rules.Candidate {
	return rules.Candidate{Title: e.Title, Body: e.Body, Tags: e.Tags}
}

// duplicateCheck evaluates the configured duplicate-title rules for one entry.
type duplicateCheck struct {
	svc   *Service
	entry *content.Entry
	pub   *content.Publication
	title string
	slugs map[string][]int64
}

func newDuplicateCheck(svc *Service, e *content.Entry, pub *content.Publication) *duplicateCheck {
	return &duplicateCheck{svc: svc, entry: e, pub: pub, title: textutil.NormalizeTitle(e.Title)}
}

func (d *duplicateCheck) forBuyer(ctx context.Context, buyerID int64) (bool, error) {
	if len(d.svc.duplicateRules) == 0 {
		return false, nil
	}
	buyer, err := d.svc.store.GetAccount(ctx, buyerID)
	if err != nil {
		return false, fmt.Errorf("buyer %d: %w", buyerID, err)
	}
	for _, rule := range d.svc.duplicateRules {
		if rule.Buyer != buyer.Slug || !slices.Contains(rule.Sources, d.pub.Slug) {
			continue
		}
		against, err := d.publicationIDs(ctx, rule.Against)
		if err != nil {
			return false, err
		}
		if len(against) == 0 {
			continue
		}
		since := transmission.StartOfDay(d.svc.now(), d.svc.loc).AddDate(0, 0, -rule.WindowDays)
		titles, err := d.svc.store.RecentTitles(ctx, against, since)
		if err != nil {
			return false, err
		}
		for _, title := range titles {
			if textutil.NormalizeTitle(title) == d.title {
				return true, nil
			}
		}
	}
	return false, nil
}

// publicationIDs resolves publication slugs, leaving out the entry's own
// publication.
func (d *duplicateCheck) publicationIDs(ctx context.Context, slugs []string) ([]int64, error) {
	if d.slugs == nil {
		pubs, err := d.svc.store.ListPublications(ctx, 0)
		if err != nil {
			return nil, err
		}
		d.slugs = make(map[string][]int64, len(pubs))
		for _, p := range pubs {
			d.slugs[p.Slug] = append(d.slugs[p.Slug], p.ID)
		}
	}
	var ids []int64
	for _, slug := range slugs {
		for _, id := range d.slugs[slug] {
			if id != d.entry.PublicationID {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
