package hashutil

import (
	"encoding/hex"
	"io"

	"github.com/sourangshupal/ragversion/internal/config"
)

// HashReader streams r through the configured algorithm and returns the
// lowercase hex digest, without buffering the whole file in memory.
func HashReader(algo config.HashAlgorithm, r io.Reader) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
