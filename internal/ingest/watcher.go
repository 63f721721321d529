package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"syndicate/internal/logging"
)

const defaultSettle = 500 * time.Millisecond

// Watcher feeds inbox files to a Processor as they arrive.
type Watcher struct {
	processor *Processor
	interval  time.Duration
	settle    time.Duration
	logger    *slog.Logger
	pending   map[string]time.Time
}

// NewWatcher builds a watcher that also rescans the inbox every interval.
func NewWatcher(p *Processor, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		processor: p,
		interval:  interval,
		settle:    defaultSettle,
		logger:    logging.NewComponentLogger(logger, "ingest-watcher"),
		pending:   make(map[string]time.Time),
	}
}

// SetSettle changes how long a file must stay quiet before it is loaded.
func (w *Watcher) SetSettle(d time.Duration) {
	if d > 0 {
		w.settle = d
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.processor.inbox); err != nil {
		return fmt.Errorf("watch inbox %s: %w", w.processor.inbox, err)
	}
	w.logger.Info("inbox watcher started",
		logging.String(logging.FieldEventType, "inbox_watch_started"),
		logging.String("inbox", w.processor.inbox),
		logging.Duration("rescan_interval", w.interval),
	)

	w.scan(ctx)
	rescan := time.NewTicker(w.interval)
	defer rescan.Stop()
	settle := time.NewTicker(w.settle / 2)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && IsFeedFile(ev.Name) {
				w.pending[ev.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "files are picked up by the next rescan"),
			)
		case <-settle.C:
			w.flush(ctx)
		case <-rescan.C:
			w.scan(ctx)
		}
	}
}

// flush loads files that have been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	for path, seen := range w.pending {
		if now.Sub(seen) < w.settle {
			continue
		}
		delete(w.pending, path)
		if _, err := w.processor.ProcessFile(ctx, path); err != nil {
			logging.ErrorWithContext(w.logger, "feed load failed", "feed_load_failed",
				logging.String("file", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the file stays in the inbox and is retried on rescan"),
			)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	if _, err := w.processor.Scan(ctx); err != nil && ctx.Err() == nil {
		logging.ErrorWithContext(w.logger, "inbox scan failed", "inbox_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the inbox directory and database"),
		)
	}
}
