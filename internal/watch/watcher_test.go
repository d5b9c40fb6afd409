package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWatcher(t *testing.T, dir string, cfg Config) *Watcher {
	t.Helper()
	if cfg.Window == 0 {
		cfg.Window = 60 * time.Millisecond
	}
	w, err := Start(context.Background(), dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	// Let the source finish registering before the test mutates files.
	time.Sleep(150 * time.Millisecond)
	return w
}

func awaitEvent(t *testing.T, w *Watcher, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestWatcher_CreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{})

	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	ev, ok := awaitEvent(t, w, 3*time.Second)
	require.True(t, ok, "no create event")
	assert.Equal(t, "doc.md", ev.Path)
	assert.Equal(t, OpCreate, ev.Op)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	ev, ok = awaitEvent(t, w, 3*time.Second)
	require.True(t, ok, "no modify event")
	assert.Equal(t, "doc.md", ev.Path)
	assert.Equal(t, OpModify, ev.Op)

	require.NoError(t, os.Remove(path))
	ev, ok = awaitEvent(t, w, 3*time.Second)
	require.True(t, ok, "no delete event")
	assert.Equal(t, "doc.md", ev.Path)
	assert.Equal(t, OpDelete, ev.Op)
}

func TestWatcher_BurstYieldsSingleEvent(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{Window: 200 * time.Millisecond})

	path := filepath.Join(dir, "busy.txt")
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	ev, ok := awaitEvent(t, w, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "busy.txt", ev.Path)
	assert.Equal(t, OpCreate, ev.Op, "burst starting from nothing is a create")

	_, extra := awaitEvent(t, w, 400*time.Millisecond)
	assert.False(t, extra, "burst must produce exactly one event")
}

func TestWatcher_HiddenAndTempFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draft.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "save~"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "#inflight#"), []byte("x"), 0o644))

	_, got := awaitEvent(t, w, 500*time.Millisecond)
	assert.False(t, got, "ignored files must not surface")
}

func TestWatcher_ExtraIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{Ignore: []string{"*.draft"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.draft"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.final"), []byte("x"), 0o644))

	ev, ok := awaitEvent(t, w, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "a.final", ev.Path)
}

func TestWatcher_GitignoreRulesApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.secret\n"), 0o644))
	w := startTestWatcher(t, dir, Config{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.secret"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.public"), []byte("x"), 0o644))

	ev, ok := awaitEvent(t, w, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "a.public", ev.Path)
}

func TestWatcher_SubdirectoriesAreWatched(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	w := startTestWatcher(t, dir, Config{})

	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("x"), 0o644))

	ev, ok := awaitEvent(t, w, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "nested/deep.txt", ev.Path)
}

func TestWatcher_CloseIsIdempotentAndClosesEvents(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{})

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, open := <-w.Events()
	assert.False(t, open, "events channel must close on Close")
}

func TestWatcher_ModeIsKnown(t *testing.T) {
	dir := t.TempDir()
	w := startTestWatcher(t, dir, Config{})
	assert.Contains(t, []string{"fsnotify", "poll"}, w.Mode())
}
