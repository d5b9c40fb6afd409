// Package chunking splits extracted document text into an ordered
// sequence of chunks using a named strategy (recursive or character),
// dispatched through a small registry so callers can plug in their own
// splitters.
package chunking

import (
	"strings"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

// Chunk is one ordered fragment of a document's extracted text.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

// Splitter splits text into an ordered, deterministic sequence of chunks.
// Implementations must be safe for concurrent use and must produce
// identical output for identical input and configuration.
type Splitter interface {
	Split(text string, chunkSize, chunkOverlap int) []string
}

// Registry resolves a strategy name (config.SplitterStrategy) to a Splitter.
type Registry struct {
	splitters map[string]Splitter
}

// NewRegistry builds the registry with the two built-in strategies
// (recursive, character) pre-registered.
func NewRegistry() *Registry {
	return &Registry{
		splitters: map[string]Splitter{
			"recursive": RecursiveSplitter{},
			"character": CharacterSplitter{},
		},
	}
}

// Register adds or overwrites the splitter for a strategy name.
func (r *Registry) Register(name string, s Splitter) {
	r.splitters[name] = s
}

// Chunk splits text using the named strategy, returning chunks with dense
// 0-based indices and whitespace-token counts.
func (r *Registry) Chunk(strategy string, text string, chunkSize, chunkOverlap int) ([]Chunk, error) {
	s, ok := r.splitters[strategy]
	if !ok {
		return nil, ragerrors.ConfigError("unknown chunking splitter: "+strategy, nil)
	}

	pieces := s.Split(text, chunkSize, chunkOverlap)
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{
			Index:      i,
			Text:       p,
			TokenCount: tokenCount(p),
		})
	}
	return chunks, nil
}

func tokenCount(text string) int {
	return len(strings.Fields(text))
}
