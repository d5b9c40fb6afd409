package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Chunk_RecursiveStrategy(t *testing.T) {
	r := NewRegistry()
	chunks, err := r.Chunk("recursive", "hello world\nthis is a test", 15, 0)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len(c.Text), 15)
	}
}

func TestRegistry_Chunk_UnknownStrategyErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Chunk("nonexistent", "text", 10, 0)
	assert.Error(t, err)
}

func TestRegistry_Chunk_IsDeterministic(t *testing.T) {
	r := NewRegistry()
	text := "The quick brown fox jumps over the lazy dog. It ran far."
	a, err := r.Chunk("recursive", text, 20, 5)
	require.NoError(t, err)
	b, err := r.Chunk("recursive", text, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRegistry_Chunk_TokenCountIsWhitespaceSeparated(t *testing.T) {
	r := NewRegistry()
	chunks, err := r.Chunk("character", "one two three", 100, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].TokenCount)
}

func TestRecursiveSplitter_NeverExceedsChunkSize(t *testing.T) {
	text := strings.Repeat("word ", 200)
	pieces := RecursiveSplitter{}.Split(text, 50, 10)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 50)
	}
}

func TestRecursiveSplitter_PrefersParagraphBreaks(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph here"
	pieces := RecursiveSplitter{}.Split(text, 25, 0)
	require.NotEmpty(t, pieces)
	assert.True(t, strings.HasSuffix(pieces[0], "\n\n"))
}

func TestRecursiveSplitter_HardSplitsWhenNoSeparatorFits(t *testing.T) {
	text := strings.Repeat("x", 100)
	pieces := RecursiveSplitter{}.Split(text, 10, 0)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 10)
	}
	assert.Equal(t, text, strings.Join(pieces, ""))
}

func TestCharacterSplitter_FixedWidthWithStride(t *testing.T) {
	pieces := CharacterSplitter{}.Split("abcdefghij", 4, 0)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, pieces)
}

func TestCharacterSplitter_OverlapRepeatsTail(t *testing.T) {
	pieces := CharacterSplitter{}.Split("abcdefghij", 4, 2)
	require.Len(t, pieces, 4)
	assert.Equal(t, "abcd", pieces[0])
	assert.Equal(t, "cdef", pieces[1])
}

func TestCharacterSplitter_EmptyTextYieldsNoChunks(t *testing.T) {
	assert.Nil(t, CharacterSplitter{}.Split("", 10, 0))
}
