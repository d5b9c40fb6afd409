package tracker

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sourangshupal/ragversion/internal/async"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
	"github.com/sourangshupal/ragversion/internal/scanner"
)

// BatchOptions configures a TrackDirectory run.
type BatchOptions struct {
	// Patterns are include globs applied to paths relative to the root
	// (empty = all files).
	Patterns []string
	// Ignore are exclude globs, applied after the scanner's built-in
	// defaults and .gitignore.
	Ignore []string
	// Recursive walks subdirectories. When false only direct children
	// of the root are considered.
	Recursive bool
	// MaxWorkers bounds concurrent tracks. Zero falls back to the
	// configured batch.max_workers.
	MaxWorkers int
	// Metadata is attached to every tracked document.
	Metadata map[string]string
	// Progress, when non-nil, receives live counters for observers.
	Progress *async.BatchProgress
}

// BatchFailure records one path that could not be tracked.
type BatchFailure struct {
	Path    string
	Kind    string
	Message string
}

// BatchResult partitions a directory run into successes and failures.
// A single path's failure never aborts the batch.
type BatchResult struct {
	Successful  []*TrackResult
	Failed      []BatchFailure
	TotalFiles  int
	Duration    time.Duration
	StartedAt   time.Time
	CompletedAt time.Time
}

// TrackDirectory walks root, applies the include/ignore filters, and
// dispatches per-path tracks onto a bounded worker pool. Per-path
// serialization is preserved because Track itself acquires the path
// lock. The context cancels the walk and all in-flight tracks.
func (t *Tracker) TrackDirectory(ctx context.Context, root string, opts BatchOptions) (*BatchResult, error) {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = t.cfg.Batch.MaxWorkers
	}
	progress := opts.Progress
	if progress == nil {
		progress = async.NewBatchProgress()
	}

	scan, err := scanner.New()
	if err != nil {
		return nil, ragerrors.InternalError("failed to create scanner", err)
	}

	results, err := scan.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  opts.Patterns,
		ExcludePatterns:  opts.Ignore,
		RespectGitignore: true,
		IncludeBinary:    true,
		MaxFileSize:      1 << 62, // size policy is the tracker's, not the walk's
	})
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	var mu sync.Mutex
	batch := &BatchResult{StartedAt: startedAt}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for res := range results {
		if res.Error != nil {
			mu.Lock()
			batch.Failed = append(batch.Failed, BatchFailure{
				Kind:    ragerrors.ErrCodeInternal,
				Message: res.Error.Error(),
			})
			mu.Unlock()
			continue
		}
		file := res.File
		if !opts.Recursive && strings.ContainsRune(file.Path, '/') {
			continue
		}

		mu.Lock()
		batch.TotalFiles++
		mu.Unlock()
		progress.SetTotal(batch.TotalFiles)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				t.recordFailure(batch, &mu, progress, file.AbsPath,
					ragerrors.CancelledError("batch cancelled", err))
				return nil
			}
			result, err := t.Track(gctx, file.AbsPath, opts.Metadata)
			if err != nil {
				t.recordFailure(batch, &mu, progress, file.AbsPath, err)
				return nil
			}
			mu.Lock()
			batch.Successful = append(batch.Successful, result)
			mu.Unlock()
			progress.RecordResult(true)
			return nil
		})
	}

	_ = g.Wait()
	progress.SetComplete()

	batch.CompletedAt = time.Now().UTC()
	batch.Duration = batch.CompletedAt.Sub(batch.StartedAt)
	return batch, nil
}

func (t *Tracker) recordFailure(batch *BatchResult, mu *sync.Mutex, progress *async.BatchProgress, path string, err error) {
	mu.Lock()
	batch.Failed = append(batch.Failed, BatchFailure{
		Path:    path,
		Kind:    ragerrors.GetCode(err),
		Message: err.Error(),
	})
	mu.Unlock()
	progress.RecordResult(false)
}
