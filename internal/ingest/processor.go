package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"syndicate/internal/content"
	"syndicate/internal/editorial"
	"syndicate/internal/fileutil"
	"syndicate/internal/logging"
	"syndicate/internal/services"
	"syndicate/internal/store"
	"syndicate/internal/tagging"
)

const (
	processedDir = "processed"
	rejectedDir  = "rejected"
)

// Store is the persistence ingest depends on.
type Store interface {
	AccountBySlug(ctx context.Context, slug string) (*content.Account, error)
	PublicationBySlug(ctx context.Context, accountSlug, slug string) (*content.Publication, error)
	RecordFeedLoad(ctx context.Context, f *store.FeedLoad) error
	FeedLoadByChecksum(ctx context.Context, checksum string) (*store.FeedLoad, error)
}

// EntrySaver saves entries with editorial side effects.
type EntrySaver interface {
	Save(ctx context.Context, e *content.Entry) (editorial.SaveResult, error)
}

// Tagger attaches tagger output to an entry.
type Tagger interface {
	Ingest(ctx context.Context, entryID int64, tags []tagging.Tag, force bool) (tagging.IngestResult, error)
}

// Processor loads feed files.
type Processor struct {
	store  Store
	saver  EntrySaver
	tagger Tagger
	inbox  string
	logger *slog.Logger

	observe func(Result)
}

// NewProcessor builds a processor for the inbox directory.
func NewProcessor(inbox string, st Store, saver EntrySaver, tagger Tagger, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		store:  st,
		saver:  saver,
		tagger: tagger,
		inbox:  inbox,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Observe registers fn to receive every finished file result.
func (p *Processor) Observe(fn func(Result)) {
	p.observe = fn
}

// Inbox returns the watched directory.
func (p *Processor) Inbox() string {
	return p.inbox
}

// Result summarises one processed file.
type Result struct {
	File     string
	Status   store.FeedLoadStatus
	Loaded   int
	Rejected int
	Message  string
}

// IsFeedFile reports whether name looks like a feed document.
func IsFeedFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

// Scan processes every feed file currently in the inbox, oldest name first.
func (p *Processor) Scan(ctx context.Context) ([]Result, error) {
	dirEntries, err := os.ReadDir(p.inbox)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var names []string
	for _, de := range dirEntries {
		if de.Type().IsRegular() && IsFeedFile(de.Name()) {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	var (
		results []Result
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.ProcessFile(ctx, filepath.Join(p.inbox, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ProcessFile loads one feed file and moves it out of the inbox. Parse and
// content problems reject the file; only infrastructure failures return an
// error, leaving the file in place for the next scan.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Result, error) {
	name := filepath.Base(path)
	result := Result{File: name}
	logger := p.logger.With(logging.String("file", name))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("read feed %s: %w", name, err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	load := &store.FeedLoad{FileName: name, Checksum: checksum, Status: store.FeedAccepted}
	previous, err := p.store.FeedLoadByChecksum(ctx, checksum)
	switch {
	case err == nil:
		load.Status = store.FeedDuplicate
		load.PublicationID = previous.PublicationID
		load.Message = fmt.Sprintf("already loaded as %s", previous.FileName)
		return p.finish(ctx, logger, path, load, processedDir)
	case !errors.Is(err, services.ErrNotFound):
		return result, err
	}
	if err := p.store.RecordFeedLoad(ctx, load); err != nil {
		return result, err
	}

	feed, err := ParseFeed(data)
	if err != nil {
		load.Status = store.FeedRejected
		load.Message = err.Error()
		return p.finish(ctx, logger, path, load, rejectedDir)
	}
	pub, err := p.store.PublicationBySlug(ctx, feed.Account, feed.Publication)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			return result, err
		}
		load.Status = store.FeedRejected
		load.Message = fmt.Sprintf("unknown publication %s/%s", feed.Account, feed.Publication)
		return p.finish(ctx, logger, path, load, rejectedDir)
	}
	load.PublicationID = pub.ID
	load.Status = store.FeedProcessing
	if err := p.store.RecordFeedLoad(ctx, load); err != nil {
		return result, err
	}

	var problems []string
	for i, fe := range feed.Entries {
		if err := p.loadEntry(ctx, pub, fe); err != nil {
			if !isContentError(err) {
				return result, fmt.Errorf("feed %s entry %d: %w", name, i+1, err)
			}
			load.EntriesRejected++
			problems = append(problems, fmt.Sprintf("entry %d: %v", i+1, err))
			continue
		}
		load.EntriesLoaded++
	}

	dest := processedDir
	load.Status = store.FeedSuccess
	if load.EntriesLoaded == 0 {
		load.Status = store.FeedRejected
		dest = rejectedDir
	}
	load.Message = strings.Join(problems, "; ")
	return p.finish(ctx, logger, path, load, dest)
}

func (p *Processor) loadEntry(ctx context.Context, pub *content.Publication, fe FeedEntry) error {
	buyers := make([]int64, 0, len(fe.ExcludeBuyers))
	for _, slug := range fe.ExcludeBuyers {
		acct, err := p.store.AccountBySlug(ctx, strings.TrimSpace(slug))
		if err != nil {
			return fmt.Errorf("exclude buyer %q: %w", slug, err)
		}
		buyers = append(buyers, acct.ID)
	}
	e, err := fe.entry(pub.ID, buyers)
	if err != nil {
		return fmt.Errorf("%w: %w", services.ErrValidation, err)
	}
	if _, err := p.saver.Save(ctx, e); err != nil {
		return err
	}
	if len(fe.Entities) > 0 && p.tagger != nil {
		if _, err := p.tagger.Ingest(ctx, e.ID, fe.Entities, false); err != nil {
			logging.WarnWithContext(p.logger, "entity tagging failed", "entry_tag_failed",
				logging.Int64(logging.FieldEntryID, e.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entry saved without entities"),
			)
		}
	}
	return nil
}

func isContentError(err error) bool {
	switch services.Classify(err) {
	case "validation", "conflict", "not_found":
		return true
	}
	return false
}

func (p *Processor) finish(ctx context.Context, logger *slog.Logger, path string, load *store.FeedLoad, dest string) (Result, error) {
	result := Result{
		File:     load.FileName,
		Status:   load.Status,
		Loaded:   load.EntriesLoaded,
		Rejected: load.EntriesRejected,
		Message:  load.Message,
	}
	if err := p.store.RecordFeedLoad(ctx, load); err != nil {
		return result, err
	}
	if err := p.move(path, dest); err != nil {
		return result, err
	}
	if p.observe != nil {
		p.observe(result)
	}
	attrs := []logging.Attr{
		logging.String("status", string(load.Status)),
		logging.Int("loaded", load.EntriesLoaded),
		logging.Int("rejected", load.EntriesRejected),
	}
	if load.Status == store.FeedRejected {
		logging.WarnWithContext(logger, "feed rejected", "feed_rejected",
			append(attrs, logging.String("reason", load.Message),
				logging.String(logging.FieldErrorHint, "fix the file and drop it into the inbox again"))...)
		return result, nil
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "feed_loaded"))
	logger.Info("feed processed", logging.Args(attrs...)...)
	return result, nil
}

func (p *Processor) move(path, sub string) error {
	dir := filepath.Join(p.inbox, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", sub, err)
	}
	target := fileutil.UniquePath(filepath.Join(dir, filepath.Base(path)))
	if err := fileutil.MoveFile(path, target); err != nil {
		return fmt.Errorf("move %s to %s: %w", filepath.Base(path), sub, err)
	}
	return nil
}
