package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// lookaheadDivisor sets the boundary search zone to the last ChunkSize/5
// bytes of each window.
const lookaheadDivisor = 5

// Split cuts text into chunks. The result depends only on its inputs.
//
// Each window spans at most ChunkSize bytes from the current start. Unless
// the window reaches the end of the text, the cut is moved back to the last
// boundary inside the lookahead zone, preferring in order: a paragraph break,
// a sentence end (. ! ? followed by whitespace), a line break, any
// whitespace. Without a boundary the window is cut hard at ChunkSize, backed
// off to a rune boundary; a rune wider than ChunkSize is kept whole. The next
// window starts Overlap bytes before the cut.
func Split(documentID, text string, p Params) ([]Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var chunks []Chunk
	n := len(text)
	start := 0
	for start < n {
		end := start + p.ChunkSize
		if end >= n {
			end = n
		} else {
			end = cutPoint(text, start, end, p)
		}

		span := text[start:end]
		if trimmed := strings.TrimSpace(span); trimmed != "" && len(trimmed) >= p.MinChunk {
			seq := len(chunks)
			chunks = append(chunks, Chunk{
				ID:         ID(documentID, seq),
				DocumentID: documentID,
				Seq:        seq,
				Start:      start,
				End:        end,
				Text:       span,
				Hash:       Hash(span),
			})
		}
		if end == n {
			break
		}

		next := end - p.Overlap
		for next < end && !utf8.RuneStart(text[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// cutPoint picks the end of the window [start, end).
func cutPoint(text string, start, end int, p Params) int {
	// The zone never reaches back past start+Overlap, so every window
	// advances the start.
	lo := max(end-p.ChunkSize/lookaheadDivisor, start+p.Overlap+1)
	if lo < end {
		zone := text[lo:end]
		if i := strings.LastIndex(zone, "\n\n"); i >= 0 {
			return lo + i + 2
		}
		if i := lastSentenceEnd(text, lo, end); i > 0 {
			return i
		}
		if i := strings.LastIndexByte(zone, '\n'); i >= 0 {
			return lo + i + 1
		}
		if i := strings.LastIndexFunc(zone, unicode.IsSpace); i >= 0 {
			_, size := utf8.DecodeRuneInString(zone[i:])
			return lo + i + size
		}
	}

	cut := end
	for cut > start+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if utf8.RuneStart(text[cut]) {
		return cut
	}
	// A single rune wider than the window: the chunk takes the whole rune.
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return end
}

// lastSentenceEnd returns the offset just past the last sentence
// terminator in [lo, end) that is followed by whitespace, or -1.
func lastSentenceEnd(text string, lo, end int) int {
	for i := end - 1; i >= lo; i-- {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) {
				r, _ := utf8.DecodeRuneInString(text[i+1:])
				if unicode.IsSpace(r) {
					return i + 1
				}
			}
		}
	}
	return -1
}
