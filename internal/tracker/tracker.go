// Package tracker orchestrates version tracking for a single path: hash,
// parse, detect, persist, emit. It owns the storage handle, the per-path
// locks that serialize concurrent tracks of the same file, and the
// post-commit event publication.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/sourangshupal/ragversion/internal/changedetect"
	"github.com/sourangshupal/ragversion/internal/chunking"
	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/docparser"
	"github.com/sourangshupal/ragversion/internal/eventbus"
	"github.com/sourangshupal/ragversion/internal/hashutil"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
	"github.com/sourangshupal/ragversion/internal/storage"
)

// TrackResult is the outcome of tracking one path.
type TrackResult struct {
	Changed       bool
	ChangeType    changedetect.Outcome
	DocumentID    string
	VersionID     string
	VersionNumber int
	ContentHash   string
	PreviousHash  string
	FilePath      string
	// ChunkDiff is populated by TrackWithChunks when a new version was
	// produced and chunking is enabled.
	ChunkDiff *changedetect.ChunkDiff
}

// Tracker is a scoped resource: New acquires storage (and, for the
// embedded backend, an exclusive process lock on the database file), and
// Close releases both on every exit path.
type Tracker struct {
	cfg      *config.Config
	store    storage.Storage
	parsers  *docparser.Registry
	chunkers *chunking.Registry
	bus      *eventbus.Bus
	logger   *slog.Logger
	locks    *pathLocks
	fileLock *flock.Flock
	ownStore bool
}

// New opens the configured storage backend and builds a Tracker around
// it. The embedded backend is additionally guarded with an advisory file
// lock so two processes cannot write the same database concurrently.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var store storage.Storage
	var fileLock *flock.Flock

	switch cfg.Storage.Backend {
	case config.StorageBackendEmbedded:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, ragerrors.ConfigError("failed to create storage directory", err)
		}
		fileLock = flock.New(cfg.Storage.Path + ".lock")
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to acquire storage lock", err)
		}
		if !locked {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity,
				fmt.Sprintf("storage at %s is locked by another process", cfg.Storage.Path), nil)
		}
		store, err = storage.NewSQLite(cfg.Storage.Path)
		if err != nil {
			_ = fileLock.Unlock()
			return nil, err
		}
	case config.StorageBackendRemote:
		dsn := cfg.Storage.URL
		if cfg.Storage.Key != "" {
			dsn = injectPassword(dsn, cfg.Storage.Key)
		}
		var err error
		store, err = storage.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ragerrors.ConfigError(fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend), nil)
	}

	t := NewWithStorage(cfg, store, logger)
	t.fileLock = fileLock
	t.ownStore = true
	return t, nil
}

// NewWithStorage builds a Tracker around an already-open storage handle.
// The caller keeps ownership of the handle: Close does not close it.
// Tests and embedding applications use this to share a store.
func NewWithStorage(cfg *config.Config, store storage.Storage, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		store:    store,
		parsers:  docparser.NewRegistry(),
		chunkers: chunking.NewRegistry(),
		bus:      eventbus.New(logger),
		logger:   logger,
		locks:    newPathLocks(),
	}
}

// Parsers exposes the parser registry so callers can plug in
// format-specific extraction (PDF, DOCX, ...).
func (t *Tracker) Parsers() *docparser.Registry { return t.parsers }

// Chunkers exposes the splitter registry for custom strategies.
func (t *Tracker) Chunkers() *chunking.Registry { return t.chunkers }

// Bus exposes the change-event bus for subscribing sinks.
func (t *Tracker) Bus() *eventbus.Bus { return t.bus }

// Storage exposes the underlying store for read-side queries (listing
// documents, version history).
func (t *Tracker) Storage() storage.Storage { return t.store }

// Close drains in-flight event deliveries and releases the storage
// handle and, for the embedded backend, the process lock. Safe to call
// once per Tracker; callers must not use the Tracker afterwards.
func (t *Tracker) Close() error {
	t.bus.Wait()
	var err error
	if t.ownStore {
		err = t.store.Close()
	}
	if t.fileLock != nil {
		if uerr := t.fileLock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// Track observes path and, if its content changed, persists a new
// version and emits a change event. Unchanged files return
// Changed=false without touching version history.
func (t *Tracker) Track(ctx context.Context, path string, metadata map[string]string) (*TrackResult, error) {
	return t.track(ctx, path, metadata, t.cfg.Chunking.Enabled, false)
}

// TrackWithChunks is Track plus chunk-level change detection: the result
// carries the ChunkDiff against the previous version's chunks.
func (t *Tracker) TrackWithChunks(ctx context.Context, path string, metadata map[string]string) (*TrackResult, error) {
	return t.track(ctx, path, metadata, true, true)
}

func (t *Tracker) track(ctx context.Context, path string, metadata map[string]string, chunked, wantDiff bool) (*TrackResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, ragerrors.NotFoundError(fmt.Sprintf("cannot resolve path %s", path), err)
	}

	release, err := t.locks.acquire(ctx, absPath)
	if err != nil {
		return nil, ragerrors.CancelledError("track cancelled while waiting for path lock", err)
	}
	defer release()

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, ragerrors.NotFoundError(fmt.Sprintf("file not found: %s", absPath), err)
	}
	if info.IsDir() {
		return nil, ragerrors.UnsupportedFormatError(fmt.Sprintf("%s is a directory", absPath), nil)
	}
	maxSize := int64(t.cfg.Tracking.MaxFileSizeMB) * 1024 * 1024
	if info.Size() > maxSize {
		return nil, ragerrors.FileTooLargeError(
			fmt.Sprintf("%s is %d bytes, limit is %d MB", absPath, info.Size(), t.cfg.Tracking.MaxFileSizeMB), nil).
			WithDetail("path", absPath)
	}

	algo := t.cfg.Tracking.HashAlgorithm
	fileHash, err := t.hashFile(algo, absPath)
	if err != nil {
		return nil, err
	}

	prior, err := t.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load document", err)
	}

	// Fast path: same size and raw bytes as the current version means
	// nothing to do, without paying for a parse.
	if prior != nil && !prior.IsDeleted && prior.FileSize == info.Size() {
		latest, err := t.store.GetLatestVersion(ctx, prior.ID)
		if err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load latest version", err)
		}
		if latest != nil && latest.FileHash == fileHash {
			return t.unchangedResult(ctx, prior, fileHash, metadata)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, ragerrors.NotFoundError(fmt.Sprintf("failed to read %s", absPath), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ragerrors.CancelledError("track cancelled", err)
	}

	parsed, err := t.parsers.Parse(filepath.Base(absPath), data)
	if err != nil {
		return nil, err
	}
	text := hashutil.NormalizeText(parsed.Text)
	contentHash, err := hashutil.Content(algo, text)
	if err != nil {
		return nil, err
	}

	outcome := changedetect.Classify(prior, contentHash)
	if outcome == changedetect.OutcomeUnchanged {
		return t.unchangedResult(ctx, prior, fileHash, metadata)
	}

	var newChunks []storage.NewChunk
	var newRefs []changedetect.ChunkRef
	if chunked {
		newChunks, newRefs, err = t.buildChunks(text)
		if err != nil {
			return nil, err
		}
	}

	var oldRefs []changedetect.ChunkRef
	fromVersion := 0
	if wantDiff && prior != nil {
		latest, err := t.store.GetLatestVersion(ctx, prior.ID)
		if err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load latest version", err)
		}
		if latest != nil {
			oldChunks, err := t.store.GetChunksByVersion(ctx, latest.ID)
			if err != nil {
				return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load chunks", err)
			}
			oldRefs = changedetect.ChunkRefsFromStored(oldChunks)
			fromVersion = latest.VersionNumber
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, ragerrors.CancelledError("track cancelled", err)
	}

	doc := prior
	if doc == nil {
		doc = &storage.Document{
			FilePath:    absPath,
			FileName:    filepath.Base(absPath),
			FileType:    strings.ToLower(filepath.Ext(absPath)),
			FileSize:    info.Size(),
			ContentHash: contentHash,
			Metadata:    metadata,
		}
		if err := t.store.CreateDocument(ctx, doc); err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConstraint, "failed to create document", err)
		}
	} else if metadata != nil {
		doc.Metadata = mergeMetadata(doc.Metadata, metadata)
	}

	previousHash := ""
	if prior != nil {
		previousHash = prior.ContentHash
	}

	nv := storage.NewVersion{
		ContentHash:  contentHash,
		FileHash:     fileHash,
		FileSize:     info.Size(),
		ChangeType:   outcome.ChangeType(),
		Metadata:     metadata,
		Content:      text,
		StoreContent: t.cfg.Tracking.StoreContent,
		Chunks:       newChunks,
	}

	version, err := t.createVersionWithRetry(ctx, doc, nv)
	if err != nil {
		return nil, err
	}

	result := &TrackResult{
		Changed:       true,
		ChangeType:    outcome,
		DocumentID:    doc.ID,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		ContentHash:   contentHash,
		PreviousHash:  previousHash,
		FilePath:      absPath,
	}
	if wantDiff {
		diff := changedetect.DiffChunks(oldRefs, newRefs)
		diff.DocumentID = doc.ID
		diff.FromVersion = fromVersion
		diff.ToVersion = version.VersionNumber
		result.ChunkDiff = diff
	}

	t.logger.Info("tracked document",
		slog.String("path", absPath),
		slog.String("change_type", string(outcome)),
		slog.Int("version", version.VersionNumber))

	t.publish(ctx, doc, version, previousHash)
	return result, nil
}

// createVersionWithRetry applies the conflict policy: a version-number
// race surfaces as Conflict, which is retried exactly once after
// re-reading the document's current state.
func (t *Tracker) createVersionWithRetry(ctx context.Context, doc *storage.Document, nv storage.NewVersion) (*storage.Version, error) {
	version, err := t.store.CreateVersion(ctx, doc, nv)
	if err == nil {
		return version, nil
	}
	if ragerrors.GetCode(err) != ragerrors.ErrCodeConflict {
		return nil, err
	}

	fresh, rerr := t.store.GetDocumentByID(ctx, doc.ID)
	if rerr != nil || fresh == nil {
		return nil, err
	}
	*doc = *fresh
	return t.store.CreateVersion(ctx, doc, nv)
}

func (t *Tracker) unchangedResult(ctx context.Context, doc *storage.Document, fileHash string, metadata map[string]string) (*TrackResult, error) {
	if metadata != nil {
		doc.Metadata = mergeMetadata(doc.Metadata, metadata)
		if err := t.store.UpdateDocument(ctx, doc); err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to update document metadata", err)
		}
	}
	return &TrackResult{
		Changed:       false,
		ChangeType:    changedetect.OutcomeUnchanged,
		DocumentID:    doc.ID,
		VersionNumber: doc.CurrentVersion,
		ContentHash:   doc.ContentHash,
		PreviousHash:  doc.ContentHash,
		FilePath:      doc.FilePath,
	}, nil
}

func (t *Tracker) hashFile(algo config.HashAlgorithm, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ragerrors.NotFoundError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()
	h, err := hashutil.HashReader(algo, f)
	if err != nil {
		return "", ragerrors.InternalError("failed to hash file", err)
	}
	return h, nil
}

func (t *Tracker) buildChunks(text string) ([]storage.NewChunk, []changedetect.ChunkRef, error) {
	chunks, err := t.chunkers.Chunk(
		string(t.cfg.Chunking.Splitter), text,
		t.cfg.Chunking.ChunkSize, t.cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}

	newChunks := make([]storage.NewChunk, 0, len(chunks))
	refs := make([]changedetect.ChunkRef, 0, len(chunks))
	for _, c := range chunks {
		hash, err := hashutil.Content(t.cfg.Tracking.HashAlgorithm, c.Text)
		if err != nil {
			return nil, nil, err
		}
		newChunks = append(newChunks, storage.NewChunk{
			ContentHash:  hash,
			TokenCount:   c.TokenCount,
			Content:      c.Text,
			StoreContent: t.cfg.Chunking.StoreChunkContent,
		})
		refs = append(refs, changedetect.ChunkRef{Index: c.Index, ContentHash: hash})
	}
	return newChunks, refs, nil
}

// Untrack soft-deletes the document (the default), or hard-deletes it
// with a cascade over its versions, chunks, and snapshots.
func (t *Tracker) Untrack(ctx context.Context, documentID string, hard bool) error {
	doc, err := t.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load document", err)
	}
	if doc == nil {
		return ragerrors.NotFoundError(fmt.Sprintf("document %s not found", documentID), nil)
	}

	if hard {
		err = t.store.HardDeleteDocumentCascade(ctx, documentID)
	} else {
		err = t.store.SoftDeleteDocument(ctx, documentID)
	}
	if err != nil {
		return ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to untrack document", err)
	}

	t.bus.Publish(ctx, eventbus.ChangeEvent{
		DocumentID:    doc.ID,
		ChangeType:    "DELETED",
		FilePath:      doc.FilePath,
		FileName:      doc.FileName,
		FileSize:      doc.FileSize,
		ContentHash:   doc.ContentHash,
		VersionNumber: doc.CurrentVersion,
		Timestamp:     time.Now().UTC(),
		Metadata:      doc.Metadata,
	})
	return nil
}

// Restore creates a new version (next number) whose content and chunks
// are copied from the target historical version, with change type
// RESTORED, and clears the document's soft-delete flag.
func (t *Tracker) Restore(ctx context.Context, documentID string, versionNumber int) (*TrackResult, error) {
	doc, err := t.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load document", err)
	}
	if doc == nil {
		return nil, ragerrors.NotFoundError(fmt.Sprintf("document %s not found", documentID), nil)
	}

	release, err := t.locks.acquire(ctx, doc.FilePath)
	if err != nil {
		return nil, ragerrors.CancelledError("restore cancelled while waiting for path lock", err)
	}
	defer release()

	target, err := t.store.GetVersion(ctx, documentID, versionNumber)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load version", err)
	}
	if target == nil {
		return nil, ragerrors.NotFoundError(
			fmt.Sprintf("version %d not found for document %s", versionNumber, documentID), nil)
	}

	content, err := t.store.GetContentSnapshot(ctx, documentID, versionNumber)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load content snapshot", err)
	}

	targetChunks, err := t.store.GetChunksByVersion(ctx, target.ID)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load chunks", err)
	}
	newChunks := make([]storage.NewChunk, 0, len(targetChunks))
	for _, c := range targetChunks {
		chunkText, err := t.store.GetChunkContent(ctx, c.ID)
		if err != nil {
			return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load chunk content", err)
		}
		newChunks = append(newChunks, storage.NewChunk{
			ContentHash:  c.ContentHash,
			TokenCount:   c.TokenCount,
			Metadata:     c.Metadata,
			Content:      chunkText,
			StoreContent: chunkText != "" && t.cfg.Chunking.StoreChunkContent,
		})
	}

	previousHash := doc.ContentHash
	nv := storage.NewVersion{
		ContentHash:  target.ContentHash,
		FileHash:     target.FileHash,
		FileSize:     target.FileSize,
		ChangeType:   storage.ChangeTypeRestored,
		Content:      content,
		StoreContent: content != "" && t.cfg.Tracking.StoreContent,
		Chunks:       newChunks,
	}
	version, err := t.createVersionWithRetry(ctx, doc, nv)
	if err != nil {
		return nil, err
	}

	t.logger.Info("restored document",
		slog.String("document_id", documentID),
		slog.Int("from_version", versionNumber),
		slog.Int("new_version", version.VersionNumber))

	t.publish(ctx, doc, version, previousHash)
	return &TrackResult{
		Changed:       true,
		ChangeType:    changedetect.OutcomeRestored,
		DocumentID:    doc.ID,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		ContentHash:   version.ContentHash,
		PreviousHash:  previousHash,
		FilePath:      doc.FilePath,
	}, nil
}

func (t *Tracker) publish(ctx context.Context, doc *storage.Document, version *storage.Version, previousHash string) {
	t.bus.Publish(ctx, eventbus.ChangeEvent{
		DocumentID:    doc.ID,
		VersionID:     version.ID,
		ChangeType:    string(version.ChangeType),
		FilePath:      doc.FilePath,
		FileName:      doc.FileName,
		FileSize:      version.FileSize,
		ContentHash:   version.ContentHash,
		PreviousHash:  previousHash,
		VersionNumber: version.VersionNumber,
		Timestamp:     version.CreatedAt,
		Metadata:      version.Metadata,
	})
}

func mergeMetadata(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// injectPassword splices a credential into a postgres URL that carries a
// user but no password.
func injectPassword(dsn, key string) string {
	i := strings.Index(dsn, "://")
	if i < 0 {
		return dsn
	}
	rest := dsn[i+3:]
	at := strings.Index(rest, "@")
	if at < 0 || strings.Contains(rest[:at], ":") {
		return dsn
	}
	return dsn[:i+3] + rest[:at] + ":" + key + "@" + rest[at:]
}
