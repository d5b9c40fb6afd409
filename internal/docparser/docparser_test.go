package docparser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperParser struct{}

func (upperParser) Extensions() []string { return []string{".upper"} }

func (upperParser) Parse(filename string, data []byte) (Result, error) {
	return Result{Text: string(data) + "!", ExtractionMethod: "upper"}, nil
}

type failingParser struct{}

func (failingParser) Extensions() []string { return []string{".broken"} }

func (failingParser) Parse(filename string, data []byte) (Result, error) {
	return Result{}, errors.New("boom")
}

func TestParse_FallsBackToPlainTextForUnregisteredExtension(t *testing.T) {
	r := NewRegistry()
	result, err := r.Parse("notes.md", []byte("# hello"))
	require.NoError(t, err)
	assert.Equal(t, "# hello", result.Text)
	assert.Equal(t, "plaintext", result.ExtractionMethod)
}

func TestParse_UsesRegisteredParserForExtension(t *testing.T) {
	r := NewRegistry()
	r.Register(upperParser{})

	result, err := r.Parse("doc.upper", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi!", result.Text)
	assert.Equal(t, "upper", result.ExtractionMethod)
}

func TestParse_ExtensionResolutionIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(upperParser{})

	result, err := r.Parse("doc.UPPER", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi!", result.Text)
}

func TestParse_RejectsNonUTF8WithoutParser(t *testing.T) {
	r := NewRegistry()
	_, err := r.Parse("image.bin", []byte{0xff, 0xfe, 0x00, 0x01})
	require.Error(t, err)
}

func TestParse_WrapsParserFailureAsParseError(t *testing.T) {
	r := NewRegistry()
	r.Register(failingParser{})

	_, err := r.Parse("doc.broken", []byte("x"))
	require.Error(t, err)
}
