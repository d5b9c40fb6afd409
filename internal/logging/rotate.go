package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// rotatingFile appends to a single log file and, when it grows past the
// size limit, renames it to name-<timestamp>.ext and starts fresh,
// pruning the oldest backups beyond the retention count.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int

	f    *os.File
	size int64
}

func openRotating(path string, maxSizeMB, maxBackups int) (*rotatingFile, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	rf := &rotatingFile{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rf.f = f
	rf.size = info.Size()
	return nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.size+int64(len(p)) > rf.maxBytes && rf.size > 0 {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rf.f.Write(p)
	rf.size += int64(n)
	return n, err
}

// rotate renames the live file out of the way and reopens a fresh one.
// Rotation failures must not lose the writer, so the live file is
// reopened even when the rename fails.
func (rf *rotatingFile) rotate() error {
	_ = rf.f.Close()
	stamp := time.Now().UTC().Format("20060102T150405.000")
	_ = os.Rename(rf.path, rf.backupName(stamp))
	rf.prune()
	return rf.open()
}

// backupName is tracker-<stamp>.log for tracker.log.
func (rf *rotatingFile) backupName(stamp string) string {
	ext := filepath.Ext(rf.path)
	return strings.TrimSuffix(rf.path, ext) + "-" + stamp + ext
}

// prune deletes the oldest backups beyond maxBackups. Backup names sort
// chronologically because the stamp is fixed-width UTC.
func (rf *rotatingFile) prune() {
	ext := filepath.Ext(rf.path)
	pattern := strings.TrimSuffix(rf.path, ext) + "-*" + ext
	backups, err := filepath.Glob(pattern)
	if err != nil || len(backups) <= rf.maxBackups {
		return
	}
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-rf.maxBackups] {
		_ = os.Remove(old)
	}
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Sync()
	if cerr := rf.f.Close(); err == nil {
		err = cerr
	}
	rf.f = nil
	return err
}

// String identifies the writer in debugging output.
func (rf *rotatingFile) String() string {
	return fmt.Sprintf("rotatingFile(%s)", rf.path)
}
