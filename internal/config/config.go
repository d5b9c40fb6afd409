// Package config defines the explicit configuration record for RAGVersion.
//
// Unlike a dynamic dictionary, every option is a named field with a yaml
// tag, a documented default, and validation. Loading rejects unknown keys
// so a typo in a config file fails fast instead of being silently ignored.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// StorageBackend selects the persistence backend.
type StorageBackend string

const (
	StorageBackendEmbedded StorageBackend = "embedded"
	StorageBackendRemote   StorageBackend = "remote"
)

// HashAlgorithm selects the content/file hashing algorithm.
type HashAlgorithm string

const (
	HashAlgorithmSHA256 HashAlgorithm = "sha256"
	HashAlgorithmSHA1   HashAlgorithm = "sha1"
	HashAlgorithmMD5    HashAlgorithm = "md5"
)

// SplitterStrategy selects the chunking splitter.
type SplitterStrategy string

const (
	SplitterRecursive SplitterStrategy = "recursive"
	SplitterCharacter SplitterStrategy = "character"
)

// Config is the complete RAGVersion configuration, mirroring the options
// enumerated in the configuration reference.
type Config struct {
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Tracking TrackingConfig `yaml:"tracking" json:"tracking"`
	Chunking ChunkingConfig `yaml:"chunking" json:"chunking"`
	Watcher  WatcherConfig  `yaml:"watcher" json:"watcher"`
	Batch    BatchConfig    `yaml:"batch" json:"batch"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "embedded" (SQLite, default) or "remote" (Postgres).
	Backend StorageBackend `yaml:"backend" json:"backend"`
	// Path is the embedded database file path (embedded backend only).
	Path string `yaml:"path" json:"path"`
	// URL is the connection string for the remote backend (e.g. a
	// postgres:// DSN). Mutually exclusive in practice with Path.
	URL string `yaml:"url" json:"url"`
	// Key is an optional credential (API key or password override) kept
	// out of URL so it can be sourced from a secrets store.
	Key string `yaml:"key" json:"key"`
}

// TrackingConfig configures per-document tracking behavior.
type TrackingConfig struct {
	// StoreContent persists full content snapshots alongside hashes.
	StoreContent bool `yaml:"store_content" json:"store_content"`
	// MaxFileSizeMB rejects files larger than this with ERR_202.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	// HashAlgorithm is used for both file_hash and content_hash.
	HashAlgorithm HashAlgorithm `yaml:"hash_algorithm" json:"hash_algorithm"`
}

// ChunkingConfig configures optional chunk-level tracking.
type ChunkingConfig struct {
	Enabled            bool             `yaml:"enabled" json:"enabled"`
	ChunkSize          int              `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap       int              `yaml:"chunk_overlap" json:"chunk_overlap"`
	Splitter           SplitterStrategy `yaml:"splitter" json:"splitter"`
	StoreChunkContent  bool             `yaml:"store_chunk_content" json:"store_chunk_content"`
}

// WatcherConfig configures the filesystem watcher's debounce behavior.
type WatcherConfig struct {
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms"`
}

// BatchConfig configures bounded-concurrency directory tracking.
type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: StorageBackendEmbedded,
			Path:    defaultStoragePath(),
		},
		Tracking: TrackingConfig{
			StoreContent:  true,
			MaxFileSizeMB: 50,
			HashAlgorithm: HashAlgorithmSHA256,
		},
		Chunking: ChunkingConfig{
			Enabled:           false,
			ChunkSize:         500,
			ChunkOverlap:      50,
			Splitter:          SplitterRecursive,
			StoreChunkContent: true,
		},
		Watcher: WatcherConfig{
			DebounceMS: 1000,
		},
		Batch: BatchConfig{
			MaxWorkers: 4,
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragversion", "tracker.db")
	}
	return filepath.Join(home, ".ragversion", "tracker.db")
}

// Load reads and validates configuration from path, starting from
// Default() and overlaying the file's contents, then applying
// RAGVERSION_* environment overrides. Unknown keys in the file are
// rejected rather than silently ignored.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, ragerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, ragerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies RAGVERSION_* environment variable overrides,
// highest precedence after an explicit config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGVERSION_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = StorageBackend(v)
	}
	if v := os.Getenv("RAGVERSION_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RAGVERSION_STORAGE_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("RAGVERSION_STORAGE_KEY"); v != "" {
		c.Storage.Key = v
	}
	if v := os.Getenv("RAGVERSION_TRACKING_MAX_FILE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tracking.MaxFileSizeMB = n
		}
	}
	if v := os.Getenv("RAGVERSION_TRACKING_HASH_ALGORITHM"); v != "" {
		c.Tracking.HashAlgorithm = HashAlgorithm(v)
	}
	if v := os.Getenv("RAGVERSION_WATCHER_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Watcher.DebounceMS = n
		}
	}
	if v := os.Getenv("RAGVERSION_BATCH_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batch.MaxWorkers = n
		}
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendEmbedded:
		if c.Storage.Path == "" {
			return ragerrors.ConfigError("storage.path is required for the embedded backend", nil)
		}
	case StorageBackendRemote:
		if c.Storage.URL == "" {
			return ragerrors.ConfigError("storage.url is required for the remote backend", nil)
		}
	default:
		return ragerrors.ConfigError(fmt.Sprintf("storage.backend must be %q or %q, got %q", StorageBackendEmbedded, StorageBackendRemote, c.Storage.Backend), nil)
	}

	if c.Tracking.MaxFileSizeMB <= 0 {
		return ragerrors.ConfigError(fmt.Sprintf("tracking.max_file_size_mb must be positive, got %d", c.Tracking.MaxFileSizeMB), nil)
	}

	switch c.Tracking.HashAlgorithm {
	case HashAlgorithmSHA256, HashAlgorithmSHA1, HashAlgorithmMD5:
	default:
		return ragerrors.ConfigError(fmt.Sprintf("tracking.hash_algorithm must be sha256, sha1, or md5, got %q", c.Tracking.HashAlgorithm), nil)
	}

	if c.Chunking.Enabled {
		if c.Chunking.ChunkSize <= 0 {
			return ragerrors.ConfigError(fmt.Sprintf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize), nil)
		}
		if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
			return ragerrors.ConfigError(fmt.Sprintf("chunking.chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize), nil)
		}
		switch c.Chunking.Splitter {
		case SplitterRecursive, SplitterCharacter:
		default:
			return ragerrors.ConfigError(fmt.Sprintf("chunking.splitter must be recursive or character, got %q", c.Chunking.Splitter), nil)
		}
	}

	if c.Watcher.DebounceMS < 0 {
		return ragerrors.ConfigError(fmt.Sprintf("watcher.debounce_ms must be non-negative, got %d", c.Watcher.DebounceMS), nil)
	}

	if c.Batch.MaxWorkers <= 0 {
		return ragerrors.ConfigError(fmt.Sprintf("batch.max_workers must be positive, got %d", c.Batch.MaxWorkers), nil)
	}

	return nil
}

// WriteYAML writes the configuration to path, for `ragversion init`-style
// scaffolding or test fixtures.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ragerrors.InternalError("failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ragerrors.ConfigError(fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}
