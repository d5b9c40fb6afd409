package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

// poller is the fallback source for filesystems where OS notification
// is unavailable. Each scan fingerprints every file (size + mtime) and
// diffs against the previous scan.
type poller struct {
	every time.Duration
}

type fingerprint struct {
	size    int64
	modTime time.Time
}

func newPoller(every time.Duration) *poller {
	return &poller{every: every}
}

func (p *poller) name() string { return "poll" }

func (p *poller) run(ctx context.Context, root string, emit rawFunc, report func(error)) error {
	// The first scan establishes the baseline without emitting: files
	// that existed before watching started are not changes.
	seen, err := p.scan(root)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := p.scan(root)
			if err != nil {
				report(err)
				continue
			}
			for rel, fp := range current {
				prev, existed := seen[rel]
				switch {
				case !existed:
					emit(rel, OpCreate, false)
				case prev != fp:
					emit(rel, OpModify, false)
				}
			}
			for rel := range seen {
				if _, still := current[rel]; !still {
					emit(rel, OpDelete, false)
				}
			}
			seen = current
		}
	}
}

func (p *poller) scan(root string) (map[string]fingerprint, error) {
	found := make(map[string]fingerprint)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		found[filepath.ToSlash(rel)] = fingerprint{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return found, err
}
