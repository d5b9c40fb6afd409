// Package logging sets up the process-wide slog logger: JSON records to
// a size-rotated file under ~/.ragversion/logs/, optionally echoed to
// stderr. Tracking decisions, watch activity, and sink failures all land
// here so a batch or watch run can be audited after the fact.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Options configures New.
type Options struct {
	// Level is the minimum level to record: debug, info, warn, error.
	Level string
	// Path is the log file. Empty disables file output entirely.
	Path string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep around.
	MaxBackups int
	// Stderr additionally echoes records to standard error.
	Stderr bool
}

// Default returns the standard options: info level, file-only, 10 MB
// files, 5 backups.
func Default() Options {
	return Options{
		Level:      "info",
		Path:       DefaultPath(),
		MaxSizeMB:  10,
		MaxBackups: 5,
	}
}

// Debug returns Default with the level dropped to debug and stderr
// echo enabled, for the CLI's --debug flag.
func Debug() Options {
	o := Default()
	o.Level = "debug"
	o.Stderr = true
	return o
}

// Dir returns the log directory (~/.ragversion/logs, or a temp-dir
// fallback when no home directory exists).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ragversion", "logs")
}

// DefaultPath returns the tracker's log file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "tracker.log")
}

// New builds a JSON slog.Logger per opts and returns it with a close
// func that flushes and releases the log file. With no file and no
// stderr, records are discarded.
func New(opts Options) (*slog.Logger, func(), error) {
	var sinks []io.Writer
	closeFn := func() {}

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, nil, err
		}
		rf, err := openRotating(opts.Path, opts.MaxSizeMB, opts.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, rf)
		closeFn = func() { _ = rf.Close() }
	}
	if opts.Stderr {
		sinks = append(sinks, os.Stderr)
	}

	var out io.Writer = io.Discard
	switch len(sinks) {
	case 1:
		out = sinks[0]
	case 2:
		out = io.MultiWriter(sinks...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level(opts.Level)})
	return slog.New(handler), closeFn, nil
}

func level(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
