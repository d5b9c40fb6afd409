package chunking

// CharacterSplitter is a fixed-width sliding window: chunkSize characters
// per chunk, advancing by chunkSize-chunkOverlap each step.
type CharacterSplitter struct{}

func (CharacterSplitter) Split(text string, chunkSize, chunkOverlap int) []string {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []string{text}
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	stride := chunkSize - chunkOverlap
	if stride <= 0 {
		stride = chunkSize
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		end := pos + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[pos:end])
		if end == len(text) {
			break
		}
		pos += stride
	}
	return chunks
}
