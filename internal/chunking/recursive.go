package chunking

import "strings"

// recursiveSeparators is the priority list: paragraph breaks first, then
// line breaks, then sentence boundaries, then plain whitespace.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

// RecursiveSplitter splits on the highest-priority separator that lands a
// chunk at or under chunkSize, hard-splitting at chunkSize when no
// separator is found within the window. Each new chunk starts chunkOverlap
// characters before the end of the previous one.
type RecursiveSplitter struct{}

func (RecursiveSplitter) Split(text string, chunkSize, chunkOverlap int) []string {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []string{text}
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		remaining := text[pos:]
		if len(remaining) <= chunkSize {
			chunks = append(chunks, remaining)
			break
		}

		window := remaining[:chunkSize]
		splitAt := -1
		for _, sep := range recursiveSeparators {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				splitAt = idx + len(sep)
				break
			}
		}
		if splitAt <= 0 {
			splitAt = chunkSize
		}

		chunks = append(chunks, remaining[:splitAt])

		advance := splitAt - chunkOverlap
		if advance <= 0 {
			advance = splitAt
		}
		pos += advance
	}
	return chunks
}
