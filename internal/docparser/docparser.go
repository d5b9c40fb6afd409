// Package docparser resolves a file's extension to a text-extraction
// capability and falls back to plain UTF-8 decoding when no parser is
// registered for that extension.
//
// Format-specific extraction (PDF, DOCX, XLSX, ...) is a capability
// provided by external code: callers register a Parser for the
// extensions they support via Register. The registry ships only the
// UTF-8/plain-text fallback; format logic never lives in the core.
package docparser

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// Result is what a Parser extracts from a file.
type Result struct {
	Text             string
	Metadata         map[string]string
	PageCount        int
	ExtractionMethod string
}

// Parser converts a file's bytes to normalized text. Implementations
// must not mutate input and must be safe for concurrent use, and must
// produce deterministic output for identical bytes.
type Parser interface {
	// Extensions returns the lowercased extensions (including the dot)
	// this parser handles, e.g. [".pdf"].
	Extensions() []string
	// Parse extracts text and metadata from the given bytes.
	Parse(filename string, data []byte) (Result, error)
}

// Registry resolves a lowercased file extension to a Parser.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates an empty registry. Use Register to add parsers;
// resolution always falls back to plain-text decoding when no
// extension-specific parser matches.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser for all the extensions it declares,
// overwriting any existing registration for those extensions.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Parse resolves filename's extension to a registered parser and
// extracts text, falling back to plain UTF-8 decoding if none is
// registered. Returns an UnsupportedFormat error if no parser matches
// and the bytes are not valid UTF-8.
func (r *Registry) Parse(filename string, data []byte) (Result, error) {
	ext := strings.ToLower(extOf(filename))

	r.mu.RLock()
	p, ok := r.parsers[ext]
	r.mu.RUnlock()

	if ok {
		result, err := p.Parse(filename, data)
		if err != nil {
			return Result{}, ragerrors.ParseError("parser failed for "+filename, err)
		}
		return result, nil
	}

	if !utf8.Valid(data) {
		return Result{}, ragerrors.UnsupportedFormatError("no parser registered for "+ext+" and content is not valid UTF-8", nil)
	}

	return Result{
		Text:             string(data),
		Metadata:         map[string]string{},
		ExtractionMethod: "plaintext",
	}, nil
}

func extOf(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}
