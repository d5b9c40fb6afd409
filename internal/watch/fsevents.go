package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// rawFunc receives unfiltered observations from a source. relPath is
// slash-separated relative to the root; isDir is best-effort (false for
// paths that no longer exist).
type rawFunc func(relPath string, op Op, isDir bool)

// source feeds raw filesystem observations until its context ends.
type source interface {
	name() string
	run(ctx context.Context, root string, emit rawFunc, report func(error)) error
}

// fsEvents is the OS-notification source. fsnotify watches are
// per-directory, so the whole tree is registered up front and new
// directories are registered as they appear.
type fsEvents struct {
	w *fsnotify.Watcher
}

func newFSEvents() (*fsEvents, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsEvents{w: w}, nil
}

func (s *fsEvents) name() string { return "fsnotify" }

func (s *fsEvents) run(ctx context.Context, root string, emit rawFunc, report func(error)) error {
	defer s.w.Close()

	if err := s.watchTree(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.w.Events:
			if !ok {
				return nil
			}
			s.handle(root, ev, emit)
		case err, ok := <-s.w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				report(err)
			}
		}
	}
}

func (s *fsEvents) handle(root string, ev fsnotify.Event, emit rawFunc) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	switch {
	case ev.Op.Has(fsnotify.Create):
		if isDir {
			// A directory moved or created with contents produces no
			// per-file events, so register it and report what's inside.
			_ = s.watchTree(ev.Name)
			s.announceContents(root, ev.Name, emit)
			return
		}
		emit(rel, OpCreate, false)
	case ev.Op.Has(fsnotify.Write):
		emit(rel, OpModify, isDir)
	case ev.Op.Has(fsnotify.Remove):
		emit(rel, OpDelete, false)
	case ev.Op.Has(fsnotify.Rename):
		// fsnotify reports the old name; the path is gone from here.
		emit(rel, OpDelete, false)
	}
}

// watchTree registers dir and every subdirectory.
func (s *fsEvents) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := s.w.Add(path); err != nil {
				return nil
			}
		}
		return nil
	})
}

// announceContents emits a create for every file already inside a
// directory that just appeared.
func (s *fsEvents) announceContents(root, dir string, emit rawFunc) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(root, path); rerr == nil {
			emit(filepath.ToSlash(rel), OpCreate, false)
		}
		return nil
	})
}
