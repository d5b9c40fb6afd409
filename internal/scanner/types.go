// Package scanner discovers trackable files under a directory for the
// batch tracker, honoring include/exclude globs and .gitignore rules.
package scanner

import "time"

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path    string    // Relative path to the scan root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the directory to scan.
	RootDir string

	// IncludePatterns specifies patterns to include (empty = all).
	IncludePatterns []string

	// ExcludePatterns specifies patterns to exclude, in addition to the
	// scanner's built-in defaults.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing.
	RespectGitignore bool

	// MaxFileSize is the maximum file size to include in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool

	// IncludeBinary keeps files whose first bytes contain NUL. The batch
	// tracker sets this so registered parsers get a chance at binary
	// formats; by default binary files are skipped.
	IncludeBinary bool
}

// ScanResult is delivered on the scanner's result channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the scanner's own ceiling (separate from, and
// typically larger than, tracking.max_file_size_mb which the tracker
// enforces per document).
const DefaultMaxFileSize = 100 * 1024 * 1024
