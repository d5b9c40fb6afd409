package tracker

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sourangshupal/ragversion/internal/watch"
)

// WatchRunner connects the filesystem watcher to the tracker: each
// debounced event becomes a track call, deletions become soft untracks.
// Per-event errors are logged and surfaced on Errors; the runner keeps
// going.
type WatchRunner struct {
	tracker *Tracker
	logger  *slog.Logger
	ignore  []string
	errs    chan error
}

// NewWatchRunner builds a runner over the tracker's configuration; the
// debounce window comes from watcher.debounce_ms, extraIgnore adds
// gitignore-syntax patterns on top of the watcher defaults.
func NewWatchRunner(t *Tracker, extraIgnore []string) (*WatchRunner, error) {
	return &WatchRunner{
		tracker: t,
		logger:  t.logger,
		ignore:  extraIgnore,
		errs:    make(chan error, 64),
	}, nil
}

// Errors exposes per-event failures for observers that want them.
// Unread errors are dropped rather than blocking event handling.
func (w *WatchRunner) Errors() <-chan error { return w.errs }

// Run watches root and processes events until ctx is cancelled, then
// shuts the watcher down (draining pending debounced entries) and
// returns. Blocks for the lifetime of the watch.
func (w *WatchRunner) Run(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	watcher, err := watch.Start(ctx, absRoot, watch.Config{
		Window: time.Duration(w.tracker.cfg.Watcher.DebounceMS) * time.Millisecond,
		Ignore: w.ignore,
	})
	if err != nil {
		return err
	}

	w.logger.Info("watching directory",
		slog.String("root", absRoot),
		slog.String("mode", watcher.Mode()))

	for {
		select {
		case <-ctx.Done():
			return watcher.Close()
		case err := <-watcher.Errors():
			if err != nil {
				w.logger.Warn("watcher error", slog.String("error", err.Error()))
				w.report(err)
			}
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			w.handle(ctx, absRoot, ev)
		}
	}
}

func (w *WatchRunner) handle(ctx context.Context, root string, ev watch.Event) {
	absPath := filepath.Join(root, filepath.FromSlash(ev.Path))

	switch ev.Op {
	case watch.OpDelete:
		doc, err := w.tracker.Storage().GetDocumentByPath(ctx, absPath)
		if err != nil {
			w.logEventError(ev, err)
			return
		}
		if doc == nil || doc.IsDeleted {
			return
		}
		if err := w.tracker.Untrack(ctx, doc.ID, false); err != nil {
			w.logEventError(ev, err)
		}
	default:
		if _, err := w.tracker.Track(ctx, absPath, nil); err != nil {
			w.logEventError(ev, err)
		}
	}
}

func (w *WatchRunner) logEventError(ev watch.Event, err error) {
	w.logger.Warn("watch event failed",
		slog.String("path", ev.Path),
		slog.String("op", ev.Op.String()),
		slog.String("error", err.Error()))
	w.report(err)
}

func (w *WatchRunner) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
