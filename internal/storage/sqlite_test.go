package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestDocument(path string) *Document {
	return &Document{
		FilePath:    path,
		FileName:    "doc.txt",
		FileType:    ".txt",
		FileSize:    10,
		ContentHash: "hash-v0",
		Metadata:    map[string]string{"source": "test"},
	}
}

func TestSQLite_DocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NotEmpty(t, doc.ID)

	byID, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "/abs/doc.txt", byID.FilePath)
	assert.Equal(t, "test", byID.Metadata["source"])
	assert.False(t, byID.CreatedAt.IsZero())

	byPath, err := s.GetDocumentByPath(ctx, "/abs/doc.txt")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, doc.ID, byPath.ID)

	missing, err := s.GetDocumentByPath(ctx, "/abs/other.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_DuplicatePathRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, newTestDocument("/abs/doc.txt")))
	err := s.CreateDocument(ctx, newTestDocument("/abs/doc.txt"))
	require.Error(t, err)
}

func TestSQLite_CreateVersionAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))

	v1, err := s.CreateVersion(ctx, doc, NewVersion{
		ContentHash:  "hash-v1",
		FileHash:     "file-v1",
		FileSize:     12,
		ChangeType:   ChangeTypeCreated,
		Content:      "hello world\n",
		StoreContent: true,
		Chunks: []NewChunk{
			{ContentHash: "c0", TokenCount: 1, Content: "hello", StoreContent: true},
			{ContentHash: "c1", TokenCount: 1, Content: "world", StoreContent: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, 1, doc.CurrentVersion)
	assert.Equal(t, "hash-v1", doc.ContentHash)

	chunks, err := s.GetChunksByVersion(ctx, v1.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)

	content, err := s.GetContentSnapshot(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", content)

	chunkText, err := s.GetChunkContent(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", chunkText)
}

func TestSQLite_VersionNumberConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))
	_, err := s.CreateVersion(ctx, doc, NewVersion{ContentHash: "h1", FileHash: "f1", ChangeType: ChangeTypeCreated})
	require.NoError(t, err)

	// Simulate a racing writer that still holds the stale version count.
	stale := *doc
	stale.CurrentVersion = 0
	_, err = s.CreateVersion(ctx, &stale, NewVersion{ContentHash: "h2", FileHash: "f2", ChangeType: ChangeTypeModified})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeConflict, ragerrors.GetCode(err))

	// The failed transaction left no partial state behind.
	count, err := s.CountVersions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	fresh, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.CurrentVersion)
	assert.Equal(t, "h1", fresh.ContentHash)
}

func TestSQLite_CreateVersionClearsSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))
	_, err := s.CreateVersion(ctx, doc, NewVersion{ContentHash: "h1", FileHash: "f1", ChangeType: ChangeTypeCreated})
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteDocument(ctx, doc.ID))
	deleted, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)

	_, err = s.CreateVersion(ctx, deleted, NewVersion{ContentHash: "h2", FileHash: "f2", ChangeType: ChangeTypeRestored})
	require.NoError(t, err)

	restored, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Equal(t, 2, restored.CurrentVersion)
}

func TestSQLite_HardDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))
	v, err := s.CreateVersion(ctx, doc, NewVersion{
		ContentHash:  "h1",
		FileHash:     "f1",
		ChangeType:   ChangeTypeCreated,
		Content:      "snapshot",
		StoreContent: true,
		Chunks:       []NewChunk{{ContentHash: "c0", TokenCount: 1, Content: "text", StoreContent: true}},
	})
	require.NoError(t, err)

	require.NoError(t, s.HardDeleteDocumentCascade(ctx, doc.ID))

	gone, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	versions, err := s.ListVersions(ctx, doc.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, versions)
	chunks, err := s.GetChunksByVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	content, err := s.GetContentSnapshot(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSQLite_ListDocumentsFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	md := newTestDocument("/abs/notes.md")
	md.FileType = ".md"
	md.Metadata = map[string]string{"team": "docs"}
	require.NoError(t, s.CreateDocument(ctx, md))

	txt := newTestDocument("/abs/readme.txt")
	require.NoError(t, s.CreateDocument(ctx, txt))

	gone := newTestDocument("/abs/gone.txt")
	require.NoError(t, s.CreateDocument(ctx, gone))
	require.NoError(t, s.SoftDeleteDocument(ctx, gone.ID))

	all, err := s.ListDocuments(ctx, ListFilter{}, OrderUpdatedAtDesc, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withDeleted, err := s.ListDocuments(ctx, ListFilter{IncludeDeleted: true}, OrderUpdatedAtDesc, 10, 0)
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	onlyMD, err := s.ListDocuments(ctx, ListFilter{FileType: ".md"}, OrderUpdatedAtDesc, 10, 0)
	require.NoError(t, err)
	require.Len(t, onlyMD, 1)
	assert.Equal(t, "/abs/notes.md", onlyMD[0].FilePath)

	byMeta, err := s.ListDocuments(ctx, ListFilter{MetadataEquals: map[string]string{"team": "docs"}}, OrderUpdatedAtDesc, 10, 0)
	require.NoError(t, err)
	require.Len(t, byMeta, 1)
	assert.Equal(t, md.ID, byMeta[0].ID)
}

func TestSQLite_VersionQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))
	for i := 1; i <= 3; i++ {
		_, err := s.CreateVersion(ctx, doc, NewVersion{
			ContentHash: "h" + string(rune('0'+i)),
			FileHash:    "f" + string(rune('0'+i)),
			ChangeType:  ChangeTypeModified,
		})
		require.NoError(t, err)
	}

	latest, err := s.GetLatestVersion(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.VersionNumber)

	v2, err := s.GetVersion(ctx, doc.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "h2", v2.ContentHash)

	missing, err := s.GetVersion(ctx, doc.ID, 9)
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := s.CountVersions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := s.ListVersions(ctx, doc.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 3, page[0].VersionNumber)
	assert.Equal(t, 2, page[1].VersionNumber)
}

func TestSQLite_CompressionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newTestDocument("/abs/doc.txt")
	require.NoError(t, s.CreateDocument(ctx, doc))

	long := ""
	for i := 0; i < 1000; i++ {
		long += "repetitive content compresses well\n"
	}
	require.NoError(t, s.PutContentSnapshot(ctx, doc.ID, 1, long))
	got, err := s.GetContentSnapshot(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, long, got)

	require.NoError(t, s.DeleteContentSnapshot(ctx, doc.ID, 1))
	gone, err := s.GetContentSnapshot(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestSQLite_PingAndIdentity(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	assert.Contains(t, s.BackendIdentity(), "sqlite")
}
