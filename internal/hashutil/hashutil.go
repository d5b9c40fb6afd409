// Package hashutil computes the deterministic content and file hashes
// the tracker uses to detect changes.
//
// Two hashes are computed per track: file_hash over the raw bytes read
// from disk, and content_hash over the UTF-8 encoding of the
// normalized extracted text. Both use the same configured algorithm
// and are reported as lowercase hex.
package hashutil

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// New returns a fresh hash.Hash for the given algorithm.
func New(algo config.HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case config.HashAlgorithmSHA256:
		return sha256.New(), nil
	case config.HashAlgorithmSHA1:
		return sha1.New(), nil
	case config.HashAlgorithmMD5:
		return md5.New(), nil
	default:
		return nil, ragerrors.ConfigError("unsupported hash algorithm: "+string(algo), nil)
	}
}

// Bytes hashes raw bytes (used for file_hash) and returns lowercase hex.
func Bytes(algo config.HashAlgorithm, data []byte) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeText unifies line endings to LF. This is the only
// canonicalization content hashing performs before hashing.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}

// Content hashes normalized extracted text (used for content_hash) and
// returns lowercase hex.
func Content(algo config.HashAlgorithm, text string) (string, error) {
	return Bytes(algo, []byte(NormalizeText(text)))
}
