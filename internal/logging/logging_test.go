package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, closeFn, err := New(Options{Level: "info", Path: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Info("tracked", "path", "/a.txt", "version", 3)
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "tracked", record["msg"])
	assert.Equal(t, "/a.txt", record["path"])
	assert.Equal(t, float64(3), record["version"])
}

func TestNew_RespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, closeFn, err := New(Options{Level: "warn", Path: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNew_NoSinksDiscards(t *testing.T) {
	logger, closeFn, err := New(Options{Level: "info"})
	require.NoError(t, err)
	defer closeFn()
	logger.Info("goes nowhere")
}

func TestLevel_Parsing(t *testing.T) {
	assert.Equal(t, "DEBUG", level("debug").String())
	assert.Equal(t, "INFO", level("info").String())
	assert.Equal(t, "WARN", level("warn").String())
	assert.Equal(t, "ERROR", level("error").String())
	assert.Equal(t, "INFO", level("bogus").String())
}

func TestRotatingFile_RotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	rf, err := openRotating(path, 1, 2)
	require.NoError(t, err)
	// Shrink the threshold so the test doesn't write megabytes.
	rf.maxBytes = 100

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 20; i++ {
		_, err := rf.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	// The live file exists and never exceeds the threshold by more than
	// one line.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(100+len(line)))

	backups, err := filepath.Glob(filepath.Join(dir, "app-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
	assert.LessOrEqual(t, len(backups), 2, "prune keeps at most MaxBackups")
}

func TestRotatingFile_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	rf, err := openRotating(path, 10, 1)
	require.NoError(t, err)
	_, err = rf.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	rf, err = openRotating(path, 10, 1)
	require.NoError(t, err)
	_, err = rf.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestDefaultPath_UnderLogDir(t *testing.T) {
	assert.Equal(t, Dir(), filepath.Dir(DefaultPath()))
	assert.True(t, strings.HasSuffix(DefaultPath(), "tracker.log"))
}
