package watch

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourangshupal/ragversion/internal/gitignore"
)

// defaultIgnores covers what no tracking run ever wants to see: the
// storage directory and database sidecars, VCS internals, and editor
// scratch files.
var defaultIgnores = []string{
	".ragversion/",
	".git/",
	"*.db",
	"*.db-wal",
	"*.db-shm",
	"*.lock",
	"*~",
	"*.swp",
	"*.swx",
	"*.tmp",
	"*.part",
	".DS_Store",
}

// Watcher owns a running watch over one directory tree: a source
// feeding raw observations, the ignore filter in front of the
// debouncer, and the debounced Events channel consumers read.
type Watcher struct {
	cfg  Config
	root string
	src  source

	rules  atomic.Pointer[gitignore.Ruleset]
	deb    *debouncer
	events chan Event
	errs   chan error

	cancel context.CancelFunc
	runErr chan error
	once   sync.Once
}

// Start begins watching root with cfg. It prefers OS notification and
// falls back to polling when that cannot be set up. The returned
// Watcher delivers debounced events until Close or ctx cancellation.
func Start(ctx context.Context, root string, cfg Config) (*Watcher, error) {
	cfg = cfg.withDefaults()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var src source
	if fse, err := newFSEvents(); err == nil {
		src = fse
	} else {
		src = newPoller(cfg.PollEvery)
	}

	w := &Watcher{
		cfg:    cfg,
		root:   absRoot,
		src:    src,
		events: make(chan Event, cfg.Buffer),
		errs:   make(chan error, 16),
		runErr: make(chan error, 1),
	}
	w.reloadRules()
	w.deb = newDebouncer(cfg.Window, w.events)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go func() {
		w.runErr <- src.run(runCtx, absRoot, w.observe, w.reportError)
	}()
	return w, nil
}

// Events delivers one debounced event per quiescent burst per path.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors carries non-fatal source errors; the watch keeps running.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Mode reports which source is active ("fsnotify" or "poll").
func (w *Watcher) Mode() string { return w.src.name() }

// reportError forwards a non-fatal source error without ever blocking
// the source.
func (w *Watcher) reportError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Close stops the source, drains pending debounced entries under the
// configured deadline, and closes the Events channel.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = <-w.runErr
		w.deb.close(w.cfg.DrainTimeout)
		close(w.events)
		close(w.errs)
	})
	return err
}

// observe is the filter between a source and the debouncer.
func (w *Watcher) observe(relPath string, op Op, isDir bool) {
	if isDir {
		return
	}
	if path.Base(relPath) == ".gitignore" {
		// Ignore rules changed; future observations use the new rules.
		w.reloadRules()
		return
	}
	if w.ignored(relPath) {
		return
	}
	w.deb.signal(relPath, op)
}

func (w *Watcher) ignored(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") && seg != ".gitignore" {
			return true
		}
		// Emacs-style in-flight saves.
		if strings.HasPrefix(seg, "#") && strings.HasSuffix(seg, "#") {
			return true
		}
	}
	return w.rules.Load().Match(relPath, false)
}

// reloadRules rebuilds the ignore ruleset from the defaults, the
// config's extra patterns, and every .gitignore in the tree.
func (w *Watcher) reloadRules() {
	rules := gitignore.New()
	for _, p := range defaultIgnores {
		rules.Add(p)
	}
	for _, p := range w.cfg.Ignore {
		rules.Add(p)
	}
	w.loadGitignores(rules)
	w.rules.Store(rules)
}

func (w *Watcher) loadGitignores(rules *gitignore.Ruleset) {
	_ = filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			rel, rerr := filepath.Rel(w.root, p)
			if rerr == nil && rel != "." && rules.Match(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, rerr := filepath.Rel(w.root, filepath.Dir(p))
		if rerr != nil {
			return nil
		}
		if base == "." {
			base = ""
		}
		_ = rules.LoadFile(p, filepath.ToSlash(base))
		return nil
	})
}
