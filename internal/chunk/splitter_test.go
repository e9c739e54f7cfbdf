package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

type span struct{ start, end int }

func spans(chunks []Chunk) []span {
	out := make([]span, len(chunks))
	for i, c := range chunks {
		out[i] = span{c.Start, c.End}
	}
	return out
}

func TestSplit_BoundaryFreeText_HardCutsWithOverlap(t *testing.T) {
	// Given: 1000 characters without any boundary
	text := strings.Repeat("abcdefghij", 100)

	// When: splitting with size 300, overlap 50, min 20
	chunks, err := Split("doc", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 20})

	// Then: four overlapping chunks at fixed offsets
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 300}, {250, 550}, {500, 800}, {750, 1000}}, spans(chunks))
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, text[c.Start:c.End], c.Text)
		assert.Equal(t, Hash(c.Text), c.Hash)
	}
	assert.Equal(t, "doc#0000000002", chunks[2].ID)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps. Over the lazy dog!\n\nAnother paragraph here? Yes. ", 40)
	p := Params{ChunkSize: 250, Overlap: 40, MinChunk: 10}

	first, err := Split("d", text, p)
	require.NoError(t, err)
	second, err := Split("d", text, p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSplit_PrefersParagraphOverSentence(t *testing.T) {
	// Given: a paragraph break and a later sentence end inside the lookahead
	text := strings.Repeat("x", 270) + "\n\n" + strings.Repeat("y", 10) + ". " + strings.Repeat("z", 200)

	chunks, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 1})

	require.NoError(t, err)
	assert.Equal(t, 272, chunks[0].End)
	assert.Equal(t, 222, chunks[1].Start)
}

func TestSplit_PrefersSentenceOverWhitespace(t *testing.T) {
	text := strings.Repeat("w", 260) + ". tail words here " + strings.Repeat("q", 300)

	chunks, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 1})

	require.NoError(t, err)
	assert.Equal(t, 261, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
}

func TestSplit_WhitespaceFallback(t *testing.T) {
	text := strings.Repeat("w", 280) + " " + strings.Repeat("q", 300)

	chunks, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 1})

	require.NoError(t, err)
	assert.Equal(t, 281, chunks[0].End)
}

func TestSplit_BoundaryOutsideLookaheadIsIgnored(t *testing.T) {
	// A sentence end at 100 is too far back from the window end at 300.
	text := strings.Repeat("a", 99) + ". " + strings.Repeat("b", 500)

	chunks, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 1})

	require.NoError(t, err)
	assert.Equal(t, 300, chunks[0].End)
}

func TestSplit_OverlapAndCoverage(t *testing.T) {
	text := strings.Repeat("Sentences end here. Some go on a little longer before ending! ", 60)
	p := Params{ChunkSize: 400, Overlap: 80, MinChunk: 20}

	chunks, err := Split("d", text, p)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.LessOrEqual(t, prev.Len(), p.ChunkSize)
		assert.Greater(t, cur.Start, prev.Start)
		assert.Equal(t, p.Overlap, prev.End-cur.Start, "chunk %d", i)
	}
}

func TestSplit_DropsShortChunks(t *testing.T) {
	// Given: a tail that ends up with 60 bytes
	text := strings.Repeat("m", 310)

	kept, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 20})
	require.NoError(t, err)
	dropped, err := Split("d", text, Params{ChunkSize: 300, Overlap: 50, MinChunk: 100})
	require.NoError(t, err)

	assert.Equal(t, []span{{0, 300}, {250, 310}}, spans(kept))
	assert.Equal(t, []span{{0, 300}}, spans(dropped))
}

func TestSplit_MinLengthAppliesAfterTrimming(t *testing.T) {
	text := "   tiny   "

	chunks, err := Split("d", text, Params{ChunkSize: 100, Overlap: 10, MinChunk: 5})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_EmptyAndBlankText(t *testing.T) {
	chunks, err := Split("d", "", DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split("d", "\n\n   \n", Params{ChunkSize: 10, Overlap: 0, MinChunk: 0})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_MultibyteTextCutsOnRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 400) // 800 bytes

	chunks, err := Split("d", text, Params{ChunkSize: 301, Overlap: 51, MinChunk: 1})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %s", c.ID)
		assert.LessOrEqual(t, c.Len(), 301)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestSplit_TinyWindowsStillAdvance(t *testing.T) {
	text := strings.Repeat("ab ", 20)

	chunks, err := Split("d", text, Params{ChunkSize: 4, Overlap: 3, MinChunk: 1})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}

func TestSplit_RunesWiderThanChunkStayWhole(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
	}{
		{"two byte runes, size 1", "ééé", 1},
		{"three byte runes, size 2", "日本語", 2},
		{"mixed, size 2", "a日b本", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: the window is narrower than a single rune
			chunks, err := Split("d", tt.text, Params{ChunkSize: tt.size, MinChunk: 1})

			// Then: every chunk is valid UTF-8 and together they cover the text
			require.NoError(t, err)
			var joined strings.Builder
			for _, c := range chunks {
				assert.True(t, utf8.ValidString(c.Text), "chunk %q", c.Text)
				joined.WriteString(c.Text)
			}
			assert.Equal(t, tt.text, joined.String())
		})
	}
}

func TestID_LexicalOrderFollowsSequence(t *testing.T) {
	seqs := []int{0, 9, 10, 99999, 100000, 1234567}
	for i := 1; i < len(seqs); i++ {
		assert.Less(t, ID("doc", seqs[i-1]), ID("doc", seqs[i]))
	}
	assert.Equal(t, "doc#0000100000", ID("doc", 100000))
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"zero size", Params{ChunkSize: 0}},
		{"overlap equals size", Params{ChunkSize: 10, Overlap: 10}},
		{"negative overlap", Params{ChunkSize: 10, Overlap: -1}},
		{"negative min", Params{ChunkSize: 10, MinChunk: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("d", "text", tt.p)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
		})
	}
	assert.NoError(t, DefaultParams().Validate())
}
