// Package storage defines the persistence capability for documents,
// versions, content snapshots, and chunks, and provides two backends
// behind the same contract: an embedded SQLite store (pure-Go
// modernc.org/sqlite in WAL mode) and a remote PostgreSQL store.
package storage

import "time"

// ChangeType classifies how a Version came to exist.
type ChangeType string

const (
	ChangeTypeCreated  ChangeType = "CREATED"
	ChangeTypeModified ChangeType = "MODIFIED"
	ChangeTypeRestored ChangeType = "RESTORED"
)

// Document is one tracked path.
type Document struct {
	ID             string
	FilePath       string
	FileName       string
	FileType       string
	FileSize       int64
	ContentHash    string
	CurrentVersion int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDeleted      bool
	Metadata       map[string]string
}

// Version is one immutable accepted state of a Document.
type Version struct {
	ID             string
	DocumentID     string
	VersionNumber  int
	ContentHash    string
	FileHash       string
	FileSize       int64
	ChangeType     ChangeType
	CreatedAt      time.Time
	Metadata       map[string]string
}

// Chunk is one ordered fragment of a Version's extracted text.
type Chunk struct {
	ID          string
	DocumentID  string
	VersionID   string
	ChunkIndex  int
	ContentHash string
	TokenCount  int
	CreatedAt   time.Time
	Metadata    map[string]string
}

// NewVersion is what a caller submits to create a Version; Storage
// assigns ID, VersionNumber and CreatedAt.
type NewVersion struct {
	ContentHash string
	FileHash    string
	FileSize    int64
	ChangeType  ChangeType
	Metadata    map[string]string
	Content     string // extracted text, stored as a ContentSnapshot if requested
	StoreContent bool
	Chunks      []NewChunk
}

// NewChunk is what a caller submits to create one Chunk alongside a
// Version.
type NewChunk struct {
	ContentHash  string
	TokenCount   int
	Metadata     map[string]string
	Content      string // chunk text, stored as ChunkContent if requested
	StoreContent bool
}

// ListFilter narrows Document.List results.
type ListFilter struct {
	FileType         string
	MetadataEquals   map[string]string
	IncludeDeleted   bool
}

// ListOrder names the sortable Document.List columns.
type ListOrder string

const (
	OrderUpdatedAtDesc ListOrder = "updated_at_desc"
	OrderCreatedAtDesc ListOrder = "created_at_desc"
)
