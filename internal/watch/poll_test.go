package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawRecorder struct {
	mu   sync.Mutex
	seen []Event
}

func (r *rawRecorder) emit(path string, op Op, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, Event{Path: path, Op: op})
}

func (r *rawRecorder) find(path string, op Op) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.seen {
		if ev.Path == path && ev.Op == op {
			return true
		}
	}
	return false
}

func (r *rawRecorder) await(t *testing.T, path string, op Op) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.find(path, op) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never observed %s %s", op, path)
}

func TestPoller_DetectsCreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("before"), 0o644))

	rec := &rawRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newPoller(20 * time.Millisecond).run(ctx, dir, rec.emit, func(error) {})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Baseline files are not reported as creates.
	time.Sleep(100 * time.Millisecond)
	assert.False(t, rec.find("existing.txt", OpCreate))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))
	rec.await(t, "new.txt", OpCreate)

	// Content change with a different size is always caught, regardless
	// of mtime granularity.
	require.NoError(t, os.WriteFile(existing, []byte("after, longer"), 0o644))
	rec.await(t, "existing.txt", OpModify)

	require.NoError(t, os.Remove(existing))
	rec.await(t, "existing.txt", OpDelete)
}

func TestPoller_ScanSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "f.txt"), []byte("x"), 0o644))

	found, err := newPoller(time.Second).scan(dir)
	require.NoError(t, err)
	assert.Contains(t, found, "sub/f.txt")
	assert.NotContains(t, found, "sub")
}
