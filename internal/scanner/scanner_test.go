package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, opts *ScanOptions) []*FileInfo {
	t.Helper()
	s, err := New()
	require.NoError(t, err)

	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)

	var files []*FileInfo
	for r := range results {
		require.NoError(t, r.Error)
		files = append(files, r.File)
	}
	return files
}

func writeFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestScan_DiscoversRegularFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "sub/b.md", "# title")

	files := collect(t, &ScanOptions{RootDir: dir})

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"a.txt", filepath.Join("sub", "b.md")}, paths)
}

func TestScan_SkipsDefaultExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "node_modules/pkg/index.js", "module.exports = {}")
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")

	files := collect(t, &ScanOptions{RootDir: dir})
	assert.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Path)
}

func TestScan_SkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02, 'a'}, 0o644))
	writeFile(t, dir, "a.txt", "hello")

	files := collect(t, &ScanOptions{RootDir: dir})
	assert.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Path)
}

func TestScan_RespectsMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.txt", "0123456789")
	writeFile(t, dir, "small.txt", "x")

	files := collect(t, &ScanOptions{RootDir: dir, MaxFileSize: 5})
	assert.Len(t, files, 1)
	assert.Equal(t, "small.txt", files[0].Path)
}

func TestScan_IncludePatternsFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package main")
	writeFile(t, dir, "b.md", "# doc")

	files := collect(t, &ScanOptions{RootDir: dir, IncludePatterns: []string{"*.go"}})
	assert.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].Path)
}

func TestScan_CustomExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "hi")
	writeFile(t, dir, "ignore.txt", "hi")

	files := collect(t, &ScanOptions{RootDir: dir, ExcludePatterns: []string{"ignore.txt"}})
	assert.Len(t, files, 1)
	assert.Equal(t, "keep.txt", files[0].Path)
}

func TestScan_RespectsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "secret.txt\n")
	writeFile(t, dir, "secret.txt", "shh")
	writeFile(t, dir, "public.txt", "hi")

	files := collect(t, &ScanOptions{RootDir: dir, RespectGitignore: true})
	assert.Len(t, files, 1)
	assert.Equal(t, "public.txt", files[0].Path)
}

func TestScan_SkipsSymlinksByDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "real.txt", "hi")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))

	files := collect(t, &ScanOptions{RootDir: dir})
	assert.Len(t, files, 1)
	assert.Equal(t, "real.txt", files[0].Path)
}
