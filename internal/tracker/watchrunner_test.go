package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/hashutil"
)

func waitForDocument(t *testing.T, tr *Tracker, path string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		doc, err := tr.Storage().GetDocumentByPath(context.Background(), path)
		require.NoError(t, err)
		if doc != nil {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// A burst of writes within the debounce window results in exactly one
// track call, and the stored content hash matches the final bytes.
func TestWatchRunner_DebouncesBurstIntoOneTrack(t *testing.T) {
	tr := newTestTracker(t, func(cfg *config.Config) {
		cfg.Watcher.DebounceMS = 300
	})
	dir := t.TempDir()

	runner, err := NewWatchRunner(tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Run(ctx, dir)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before the burst.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "x.md")
	final := "final content after burst\n"
	for i := 0; i < 10; i++ {
		content := final
		if i < 9 {
			content = "intermediate\n"
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.True(t, waitForDocument(t, tr, path, 5*time.Second), "document never appeared")

	// Allow any straggler events to settle, then check exactly one
	// version exists with the final content.
	time.Sleep(600 * time.Millisecond)
	doc, err := tr.Storage().GetDocumentByPath(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.CurrentVersion)

	wantHash, err := hashutil.Content(tr.cfg.Tracking.HashAlgorithm, final)
	require.NoError(t, err)
	assert.Equal(t, wantHash, doc.ContentHash)
}

func TestWatchRunner_DeleteSoftUntracks(t *testing.T) {
	tr := newTestTracker(t, func(cfg *config.Config) {
		cfg.Watcher.DebounceMS = 100
	})
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.txt", "here today\n")

	res, err := tr.Track(context.Background(), path, nil)
	require.NoError(t, err)

	runner, err := NewWatchRunner(tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Run(ctx, dir)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := tr.Storage().GetDocumentByID(context.Background(), res.DocumentID)
		require.NoError(t, err)
		if doc != nil && doc.IsDeleted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("document was never soft-deleted after file removal")
}
