package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// PostgresStorage is the remote backend: a pgxpool with conservative
// connection limits, opened with a ping, and an idempotent "CREATE TABLE
// IF NOT EXISTS" schema applied on construction.
type PostgresStorage struct {
	pool *pgxpool.Pool
	dsn  string
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgres connects to dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, ragerrors.ConfigError("invalid postgres connection string", err)
	}
	cfg.MaxConns = 16
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	s := &PostgresStorage{pool: pool, dsn: dsn}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL UNIQUE,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			content_hash TEXT NOT NULL,
			current_version INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_type_updated ON documents(file_type, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			change_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			UNIQUE(document_id, version_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_created_at ON versions(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS content_snapshots (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			compressed_content BYTEA NOT NULL,
			PRIMARY KEY (document_id, version_number)
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version_id TEXT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			UNIQUE(version_id, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash)`,
		`CREATE TABLE IF NOT EXISTS chunk_content (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			compressed_content BYTEA NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStorage) BackendIdentity() string { return "postgres" }

func (s *PostgresStorage) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStorage) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, file_path, file_name, file_type, file_size, content_hash,
			current_version, created_at, updated_at, is_deleted, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		doc.ID, doc.FilePath, doc.FileName, doc.FileType, doc.FileSize, doc.ContentHash,
		doc.CurrentVersion, doc.CreatedAt, doc.UpdatedAt, doc.IsDeleted, pgMetadata(doc.Metadata))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx, documentSelect+` WHERE id = $1`, id)
	return scanPgDocument(row)
}

func (s *PostgresStorage) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	row := s.pool.QueryRow(ctx, documentSelect+` WHERE file_path = $1`, path)
	return scanPgDocument(row)
}

func (s *PostgresStorage) UpdateDocument(ctx context.Context, doc *Document) error {
	doc.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET file_name=$1, file_type=$2, file_size=$3, content_hash=$4,
			current_version=$5, updated_at=$6, is_deleted=$7, metadata=$8
		WHERE id=$9`,
		doc.FileName, doc.FileType, doc.FileSize, doc.ContentHash, doc.CurrentVersion,
		doc.UpdatedAt, doc.IsDeleted, pgMetadata(doc.Metadata), doc.ID)
	return err
}

func (s *PostgresStorage) SoftDeleteDocument(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET is_deleted = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	return err
}

func (s *PostgresStorage) HardDeleteDocumentCascade(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

func (s *PostgresStorage) ListDocuments(ctx context.Context, filter ListFilter, order ListOrder, limit, offset int) ([]*Document, error) {
	query := documentSelect + ` WHERE TRUE`
	args := []any{}
	argN := func() int { return len(args) }

	if !filter.IncludeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	if filter.FileType != "" {
		args = append(args, filter.FileType)
		query += fmt.Sprintf(" AND file_type = $%d", argN()-0)
	}
	for k, v := range filter.MetadataEquals {
		args = append(args, k, v)
		query += fmt.Sprintf(" AND metadata ->> $%d = $%d", argN()-1, argN())
	}
	switch order {
	case OrderCreatedAtDesc:
		query += " ORDER BY created_at DESC"
	default:
		query += " ORDER BY updated_at DESC"
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN()-1, argN())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanPgDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStorage) CreateVersion(ctx context.Context, doc *Document, nv NewVersion) (*Version, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

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

	if _, err := tx.Exec(ctx, `
		INSERT INTO versions (id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		version.ID, version.DocumentID, version.VersionNumber, version.ContentHash, version.FileHash,
		version.FileSize, string(version.ChangeType), version.CreatedAt, pgMetadata(version.Metadata)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ragerrors.ConflictError(fmt.Sprintf("version %d already exists for document %s", versionNumber, doc.ID), err)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	doc.CurrentVersion = versionNumber
	doc.ContentHash = nv.ContentHash
	doc.FileSize = nv.FileSize
	doc.UpdatedAt = now
	doc.IsDeleted = false
	if _, err := tx.Exec(ctx, `
		UPDATE documents SET current_version=$1, content_hash=$2, file_size=$3, updated_at=$4, is_deleted=FALSE, metadata=$5
		WHERE id=$6`,
		doc.CurrentVersion, doc.ContentHash, doc.FileSize, doc.UpdatedAt, pgMetadata(doc.Metadata), doc.ID); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	for i, nc := range nv.Chunks {
		chunkID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, version_id, chunk_index, content_hash, token_count, created_at, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			chunkID, doc.ID, version.ID, i, nc.ContentHash, nc.TokenCount, now, pgMetadata(nc.Metadata)); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		if nc.StoreContent {
			compressed, err := compress(nc.Content)
			if err != nil {
				return nil, err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO chunk_content (chunk_id, compressed_content) VALUES ($1,$2)`,
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
		if _, err := tx.Exec(ctx, `
			INSERT INTO content_snapshots (document_id, version_number, compressed_content) VALUES ($1,$2,$3)
			ON CONFLICT (document_id, version_number) DO UPDATE SET compressed_content = EXCLUDED.compressed_content`,
			doc.ID, versionNumber, compressed); err != nil {
			return nil, fmt.Errorf("failed to insert content snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return version, nil
}

const versionSelect = `SELECT id, document_id, version_number, content_hash, file_hash, file_size, change_type, created_at, metadata FROM versions`

func (s *PostgresStorage) GetVersion(ctx context.Context, documentID string, versionNumber int) (*Version, error) {
	row := s.pool.QueryRow(ctx, versionSelect+` WHERE document_id = $1 AND version_number = $2`, documentID, versionNumber)
	return scanPgVersion(row)
}

func (s *PostgresStorage) GetLatestVersion(ctx context.Context, documentID string) (*Version, error) {
	row := s.pool.QueryRow(ctx, versionSelect+` WHERE document_id = $1 ORDER BY version_number DESC LIMIT 1`, documentID)
	return scanPgVersion(row)
}

func (s *PostgresStorage) ListVersions(ctx context.Context, documentID string, limit, offset int) ([]*Version, error) {
	rows, err := s.pool.Query(ctx, versionSelect+` WHERE document_id = $1 ORDER BY version_number DESC LIMIT $2 OFFSET $3`,
		documentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanPgVersionRow(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStorage) CountVersions(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM versions WHERE document_id = $1`, documentID).Scan(&count)
	return count, err
}

func (s *PostgresStorage) PutContentSnapshot(ctx context.Context, documentID string, versionNumber int, content string) error {
	compressed, err := compress(content)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO content_snapshots (document_id, version_number, compressed_content) VALUES ($1,$2,$3)
		ON CONFLICT (document_id, version_number) DO UPDATE SET compressed_content = EXCLUDED.compressed_content`,
		documentID, versionNumber, compressed)
	return err
}

func (s *PostgresStorage) GetContentSnapshot(ctx context.Context, documentID string, versionNumber int) (string, error) {
	var compressed []byte
	err := s.pool.QueryRow(ctx, `SELECT compressed_content FROM content_snapshots WHERE document_id = $1 AND version_number = $2`,
		documentID, versionNumber).Scan(&compressed)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decompress(compressed)
}

func (s *PostgresStorage) DeleteContentSnapshot(ctx context.Context, documentID string, versionNumber int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM content_snapshots WHERE document_id = $1 AND version_number = $2`,
		documentID, versionNumber)
	return err
}

func (s *PostgresStorage) GetChunksByVersion(ctx context.Context, versionID string) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, version_id, chunk_index, content_hash, token_count, created_at, metadata
		FROM chunks WHERE version_id = $1 ORDER BY chunk_index ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var meta map[string]string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.VersionID, &c.ChunkIndex, &c.ContentHash,
			&c.TokenCount, &c.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Metadata = meta
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStorage) GetChunkContent(ctx context.Context, chunkID string) (string, error) {
	var compressed []byte
	err := s.pool.QueryRow(ctx, `SELECT compressed_content FROM chunk_content WHERE chunk_id = $1`, chunkID).Scan(&compressed)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decompress(compressed)
}

func (s *PostgresStorage) DeleteChunksByVersion(ctx context.Context, versionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE version_id = $1`, versionID)
	return err
}

const documentSelect = `SELECT id, file_path, file_name, file_type, file_size, content_hash, current_version, created_at, updated_at, is_deleted, metadata FROM documents`

type pgRow interface {
	Scan(dest ...any) error
}

func scanPgDocument(row pgRow) (*Document, error) {
	doc, err := scanPgDocumentRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func scanPgDocumentRow(row pgRow) (*Document, error) {
	var doc Document
	var meta map[string]string
	if err := row.Scan(&doc.ID, &doc.FilePath, &doc.FileName, &doc.FileType, &doc.FileSize,
		&doc.ContentHash, &doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt, &doc.IsDeleted, &meta); err != nil {
		return nil, err
	}
	doc.Metadata = meta
	return &doc, nil
}

func scanPgVersion(row pgRow) (*Version, error) {
	v, err := scanPgVersionRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func scanPgVersionRow(row pgRow) (*Version, error) {
	var v Version
	var changeType string
	var meta map[string]string
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.ContentHash, &v.FileHash,
		&v.FileSize, &changeType, &v.CreatedAt, &meta); err != nil {
		return nil, err
	}
	v.ChangeType = ChangeType(changeType)
	v.Metadata = meta
	return &v, nil
}

func pgMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
