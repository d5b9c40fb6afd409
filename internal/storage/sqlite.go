package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	_ "modernc.org/sqlite"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// SQLiteStorage is the embedded backend: WAL mode, a single writer
// connection, busy-timeout pragmas, and an idempotent "CREATE TABLE IF
// NOT EXISTS" schema applied on open.
type SQLiteStorage struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLite opens (creating if needed) a SQLite-backed store at path. An
// empty path opens an in-memory database, used by tests.
func NewSQLite(path string) (*SQLiteStorage, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ragerrors.ConfigError("failed to create storage directory", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		current_version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_type_updated ON documents(file_type, updated_at DESC);

	CREATE TABLE IF NOT EXISTS versions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		change_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		UNIQUE(document_id, version_number)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_created_at ON versions(created_at DESC);

	CREATE TABLE IF NOT EXISTS content_snapshots (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL,
		compressed_content BLOB NOT NULL,
		PRIMARY KEY (document_id, version_number)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		version_id TEXT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		UNIQUE(version_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash);

	CREATE TABLE IF NOT EXISTS chunk_content (
		chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		compressed_content BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) BackendIdentity() string { return "sqlite:" + s.path }

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// --- documents ---

func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, file_path, file_name, file_type, file_size,
			content_hash, current_version, created_at, updated_at, is_deleted, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FilePath, doc.FileName, doc.FileType, doc.FileSize,
		doc.ContentHash, doc.CurrentVersion, formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
		boolToInt(doc.IsDeleted), meta)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	return s.scanOneDocument(ctx, "SELECT id, file_path, file_name, file_type, file_size, content_hash, current_version, created_at, updated_at, is_deleted, metadata FROM documents WHERE id = ?", id)
}

func (s *SQLiteStorage) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	return s.scanOneDocument(ctx, "SELECT id, file_path, file_name, file_type, file_size, content_hash, current_version, created_at, updated_at, is_deleted, metadata FROM documents WHERE file_path = ?", path)
}

func (s *SQLiteStorage) scanOneDocument(ctx context.Context, query string, arg any) (*Document, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.UpdatedAt = time.Now().UTC()
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE documents SET file_name = ?, file_type = ?, file_size = ?, content_hash = ?,
			current_version = ?, updated_at = ?, is_deleted = ?, metadata = ?
		WHERE id = ?`,
		doc.FileName, doc.FileType, doc.FileSize, doc.ContentHash,
		doc.CurrentVersion, formatTime(doc.UpdatedAt), boolToInt(doc.IsDeleted), meta, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SoftDeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET is_deleted = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), id)
	return err
}

func (s *SQLiteStorage) HardDeleteDocumentCascade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context, filter ListFilter, order ListOrder, limit, offset int) ([]*Document, error) {
	query := "SELECT id, file_path, file_name, file_type, file_size, content_hash, current_version, created_at, updated_at, is_deleted, metadata FROM documents WHERE 1=1"
	var args []any

	if !filter.IncludeDeleted {
		query += " AND is_deleted = 0"
	}
	if filter.FileType != "" {
		query += " AND file_type = ?"
		args = append(args, filter.FileType)
	}
	for k, v := range filter.MetadataEquals {
		query += " AND json_extract(metadata, ?) = ?"
		args = append(args, "$."+k, v)
	}

	switch order {
	case OrderCreatedAtDesc:
		query += " ORDER BY created_at DESC"
	default:
		query += " ORDER BY updated_at DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// --- versions ---

// CreateVersion implements the atomicity contract: a single transaction
// inserts the Version row, updates the Document, inserts all Chunks (and
// ChunkContent), and optionally the ContentSnapshot. Any failure rolls
// back the whole set.
func (s *SQLiteStorage) CreateVersion(ctx context.Context, doc *Document, nv NewVersion) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	versionNumber := doc.CurrentVersion + 1
	now := time.Now().UTC()
	version := &Version{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		VersionNumber: versionNumber,
		ContentHash:   nv.ContentHash,
		FileHash:      nv.FileHash,
		FileSize:      nv.FileSize,
		ChangeType:    nv.ChangeType,
		CreatedAt:     now,
		Metadata:      nv.Metadata,
	}
	versionMeta, err := marshalMetadata(version.Metadata)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.DocumentID, version.VersionNumber, version.ContentHash, version.FileHash,
		version.FileSize, string(version.ChangeType), formatTime(version.CreatedAt), versionMeta); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ragerrors.ConflictError(fmt.Sprintf("version %d already exists for document %s", versionNumber, doc.ID), err)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	doc.CurrentVersion = versionNumber
	doc.ContentHash = nv.ContentHash
	doc.FileSize = nv.FileSize
	doc.UpdatedAt = now
	doc.IsDeleted = false
	docMeta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET current_version = ?, content_hash = ?, file_size = ?, updated_at = ?, is_deleted = 0, metadata = ?
		WHERE id = ?`,
		doc.CurrentVersion, doc.ContentHash, doc.FileSize, formatTime(doc.UpdatedAt), docMeta, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	for i, nc := range nv.Chunks {
		chunkMeta, err := marshalMetadata(nc.Metadata)
		if err != nil {
			return nil, err
		}
		chunkID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, version_id, chunk_index, content_hash, token_count, created_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chunkID, doc.ID, version.ID, i, nc.ContentHash, nc.TokenCount, formatTime(now), chunkMeta); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		if nc.StoreContent {
			compressed, err := compress(nc.Content)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_content (chunk_id, compressed_content) VALUES (?, ?)`,
				chunkID, compressed); err != nil {
				return nil, fmt.Errorf("failed to insert chunk content %d: %w", i, err)
			}
		}
	}

	if nv.StoreContent {
		compressed, err := compress(nv.Content)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO content_snapshots (document_id, version_number, compressed_content)
			VALUES (?, ?, ?)`, doc.ID, versionNumber, compressed); err != nil {
			return nil, fmt.Errorf("failed to insert content snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStorage) GetVersion(ctx context.Context, documentID string, versionNumber int) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata
		FROM versions WHERE document_id = ? AND version_number = ?`, documentID, versionNumber)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStorage) GetLatestVersion(ctx context.Context, documentID string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata
		FROM versions WHERE document_id = ? ORDER BY version_number DESC LIMIT 1`, documentID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStorage) ListVersions(ctx context.Context, documentID string, limit, offset int) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata
		FROM versions WHERE document_id = ? ORDER BY version_number DESC LIMIT ? OFFSET ?`, documentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStorage) CountVersions(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE document_id = ?`, documentID).Scan(&count)
	return count, err
}

// --- content snapshots ---

func (s *SQLiteStorage) PutContentSnapshot(ctx context.Context, documentID string, versionNumber int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	compressed, err := compress(content)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO content_snapshots (document_id, version_number, compressed_content) VALUES (?, ?, ?)`,
		documentID, versionNumber, compressed)
	return err
}

func (s *SQLiteStorage) GetContentSnapshot(ctx context.Context, documentID string, versionNumber int) (string, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT compressed_content FROM content_snapshots WHERE document_id = ? AND version_number = ?`,
		documentID, versionNumber).Scan(&compressed)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decompress(compressed)
}

func (s *SQLiteStorage) DeleteContentSnapshot(ctx context.Context, documentID string, versionNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_snapshots WHERE document_id = ? AND version_number = ?`,
		documentID, versionNumber)
	return err
}

// --- chunks ---

func (s *SQLiteStorage) GetChunksByVersion(ctx context.Context, versionID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_id, chunk_index, content_hash, token_count, created_at, metadata
		FROM chunks WHERE version_id = ? ORDER BY chunk_index ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) GetChunkContent(ctx context.Context, chunkID string) (string, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT compressed_content FROM chunk_content WHERE chunk_id = ?`, chunkID).Scan(&compressed)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decompress(compressed)
}

func (s *SQLiteStorage) DeleteChunksByVersion(ctx context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE version_id = ?`, versionID)
	return err
}

// --- scanning + encoding helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var createdAt, updatedAt, metaJSON string
	var isDeleted int
	if err := row.Scan(&doc.ID, &doc.FilePath, &doc.FileName, &doc.FileType, &doc.FileSize,
		&doc.ContentHash, &doc.CurrentVersion, &createdAt, &updatedAt, &isDeleted, &metaJSON); err != nil {
		return nil, err
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	doc.IsDeleted = isDeleted != 0
	doc.Metadata = unmarshalMetadata(metaJSON)
	return &doc, nil
}

func scanVersion(row scanner) (*Version, error) {
	var v Version
	var createdAt, changeType, metaJSON string
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.ContentHash, &v.FileHash,
		&v.FileSize, &changeType, &createdAt, &metaJSON); err != nil {
		return nil, err
	}
	v.ChangeType = ChangeType(changeType)
	v.CreatedAt = parseTime(createdAt)
	v.Metadata = unmarshalMetadata(metaJSON)
	return &v, nil
}

func scanChunk(row scanner) (*Chunk, error) {
	var c Chunk
	var createdAt, metaJSON string
	if err := row.Scan(&c.ID, &c.DocumentID, &c.VersionID, &c.ChunkIndex, &c.ContentHash,
		&c.TokenCount, &createdAt, &metaJSON); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.Metadata = unmarshalMetadata(metaJSON)
	return &c, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) map[string]string {
	if s == "" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]string{}
	}
	return m
}

// compress and decompress use klauspost/compress's deflate
// implementation. Snapshots and chunk content are small text blobs, so
// BestSpeed is the right trade.
func compress(text string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("failed to compress content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush compressor: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) (string, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decompress content: %w", err)
	}
	return string(out), nil
}
