package tracker

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sourangshupal/ragversion/internal/changedetect"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
	"github.com/sourangshupal/ragversion/internal/storage"
)

// DiffResult is a textual comparison of two stored versions.
type DiffResult struct {
	DocumentID  string
	FromVersion int
	ToVersion   int
	// UnifiedDiff is a unified-format line diff of the two content
	// snapshots.
	UnifiedDiff string
	// Similarity is in [0, 1]; 1 means identical content.
	Similarity float64
}

// GetDiff produces a line diff between two versions' content snapshots.
// Requires tracking.store_content; versions stored without snapshots
// surface NotFound.
func (t *Tracker) GetDiff(ctx context.Context, documentID string, from, to int) (*DiffResult, error) {
	fromVersion, toVersion, err := t.loadVersionPair(ctx, documentID, from, to)
	if err != nil {
		return nil, err
	}

	fromContent, err := t.snapshotOrError(ctx, documentID, fromVersion.VersionNumber)
	if err != nil {
		return nil, err
	}
	toContent, err := t.snapshotOrError(ctx, documentID, toVersion.VersionNumber)
	if err != nil {
		return nil, err
	}

	fromLines := difflib.SplitLines(fromContent)
	toLines := difflib.SplitLines(toContent)
	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        fromLines,
		B:        toLines,
		FromFile: fmt.Sprintf("version %d", from),
		ToFile:   fmt.Sprintf("version %d", to),
		Context:  3,
	})
	if err != nil {
		return nil, ragerrors.InternalError("failed to compute diff", err)
	}

	matcher := difflib.NewMatcher(fromLines, toLines)
	return &DiffResult{
		DocumentID:  documentID,
		FromVersion: from,
		ToVersion:   to,
		UnifiedDiff: unified,
		Similarity:  matcher.Ratio(),
	}, nil
}

// GetChunkDiff reconstructs the chunk-level diff between two stored
// versions from their persisted chunk hashes.
func (t *Tracker) GetChunkDiff(ctx context.Context, documentID string, from, to int) (*changedetect.ChunkDiff, error) {
	fromVersion, toVersion, err := t.loadVersionPair(ctx, documentID, from, to)
	if err != nil {
		return nil, err
	}

	oldChunks, err := t.store.GetChunksByVersion(ctx, fromVersion.ID)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load chunks", err)
	}
	newChunks, err := t.store.GetChunksByVersion(ctx, toVersion.ID)
	if err != nil {
		return nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load chunks", err)
	}

	diff := changedetect.DiffChunks(
		changedetect.ChunkRefsFromStored(oldChunks),
		changedetect.ChunkRefsFromStored(newChunks))
	diff.DocumentID = documentID
	diff.FromVersion = from
	diff.ToVersion = to
	return diff, nil
}

func (t *Tracker) loadVersionPair(ctx context.Context, documentID string, from, to int) (*storage.Version, *storage.Version, error) {
	fromVersion, err := t.store.GetVersion(ctx, documentID, from)
	if err != nil {
		return nil, nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load version", err)
	}
	if fromVersion == nil {
		return nil, nil, ragerrors.NotFoundError(
			fmt.Sprintf("version %d not found for document %s", from, documentID), nil)
	}
	toVersion, err := t.store.GetVersion(ctx, documentID, to)
	if err != nil {
		return nil, nil, ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load version", err)
	}
	if toVersion == nil {
		return nil, nil, ragerrors.NotFoundError(
			fmt.Sprintf("version %d not found for document %s", to, documentID), nil)
	}
	return fromVersion, toVersion, nil
}

func (t *Tracker) snapshotOrError(ctx context.Context, documentID string, versionNumber int) (string, error) {
	content, err := t.store.GetContentSnapshot(ctx, documentID, versionNumber)
	if err != nil {
		return "", ragerrors.StorageError(ragerrors.SubkindConnectivity, "failed to load content snapshot", err)
	}
	if content == "" {
		return "", ragerrors.NotFoundError(
			fmt.Sprintf("no content snapshot for document %s version %d (store_content disabled?)", documentID, versionNumber), nil)
	}
	return content, nil
}
