package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/async"
	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/tracker"
)

func newBatchCmd() *cobra.Command {
	var (
		patterns  []string
		ignore    []string
		recursive bool
		workers   int
		metaPairs []string
	)

	cmd := &cobra.Command{
		Use:   "batch <directory>",
		Short: "Track every matching file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, cfg, err := openTracker(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			meta, err := parseMetadataFlags(metaPairs)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Batch.MaxWorkers
			}

			lockDir := batchLockDir(cfg)
			if lockDir != "" && async.HasIncompleteLock(lockDir) {
				fmt.Println("note: a previous batch run did not complete cleanly")
			}

			var result *tracker.BatchResult
			runner := async.NewBackgroundRunner(async.RunnerConfig{LockDir: lockDir})
			runner.Func = func(ctx context.Context, progress *async.BatchProgress) error {
				var runErr error
				result, runErr = t.TrackDirectory(ctx, args[0], tracker.BatchOptions{
					Patterns:   patterns,
					Ignore:     ignore,
					Recursive:  recursive,
					MaxWorkers: workers,
					Metadata:   meta,
					Progress:   progress,
				})
				return runErr
			}
			runner.Start(cmd.Context())

			// Live progress on a terminal; silence under pipes.
			if useColor() {
				ticker := time.NewTicker(500 * time.Millisecond)
				defer ticker.Stop()
				for runner.IsRunning() {
					<-ticker.C
					snap := runner.Progress().Snapshot()
					fmt.Printf("\r%d/%d files (%d failed)", snap.FilesProcessed, snap.FilesTotal, snap.FilesFailed)
				}
				fmt.Print("\r")
			}

			if err := runner.Wait(); err != nil {
				return err
			}

			changed := 0
			for _, r := range result.Successful {
				if r.Changed {
					changed++
				}
			}
			fmt.Printf("%d files in %s: %d tracked (%d changed), %d failed\n",
				result.TotalFiles, result.Duration.Round(time.Millisecond), len(result.Successful), changed, len(result.Failed))
			for _, f := range result.Failed {
				fmt.Printf("  failed %s: [%s] %s\n", f.Path, f.Kind, f.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "Include glob (repeatable; default all files)")
	cmd.Flags().StringArrayVarP(&ignore, "ignore", "i", nil, "Exclude glob (repeatable)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Walk subdirectories")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent tracks (default: batch.max_workers)")
	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Document metadata as key=value (repeatable)")
	return cmd
}

// batchLockDir places the overlap-detection lock next to the embedded
// database. Remote backends skip the marker; the database itself is the
// shared state there.
func batchLockDir(cfg *config.Config) string {
	if cfg.Storage.Backend != config.StorageBackendEmbedded || cfg.Storage.Path == "" {
		return ""
	}
	return filepath.Dir(cfg.Storage.Path)
}
