package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(ChunkConfig{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return c
}

// unbroken returns n characters with no whitespace, cycling through the alphabet.
func unbroken(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func wordText(words int) string {
	vocab := []string{"revenue", "increased", "by", "twelve", "percent", "in", "the", "third", "quarter", "driven", "by", "services"}
	parts := make([]string, words)
	for i := range parts {
		parts[i] = vocab[i%len(vocab)]
	}
	return strings.Join(parts, " ")
}

func TestNewChunker_InvalidConfig(t *testing.T) {
	_, err := NewChunker(ChunkConfig{ChunkSize: 0, ChunkOverlap: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidChunkConfig)

	_, err = NewChunker(ChunkConfig{ChunkSize: 100, ChunkOverlap: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidChunkConfig)
	assert.True(t, domain.IsConfiguration(err))

	_, err = NewChunker(ChunkConfig{ChunkSize: 100, ChunkOverlap: -1})
	assert.Error(t, err)
}

func TestChunker_EmptyText(t *testing.T) {
	c := newTestChunker(t, 1000, 150)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n  \n "))
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	c := newTestChunker(t, 1000, 150)

	chunks := c.Split("\n\nPage 1\nTotal revenue was $4.2M.\n")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Page 1\nTotal revenue was $4.2M.", chunks[0])
}

func TestChunker_UnbrokenTextScenario(t *testing.T) {
	c := newTestChunker(t, 1000, 150)
	text := unbroken(2500)

	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, text[0:1000], chunks[0])
	assert.Equal(t, text[850:1850], chunks[1])
	assert.Equal(t, text[1700:2500], chunks[2])
	assert.Equal(t, chunks[0][len(chunks[0])-150:], chunks[1][:150])
	assert.Equal(t, chunks[1][len(chunks[1])-150:], chunks[2][:150])
}

func TestChunker_Deterministic(t *testing.T) {
	c := newTestChunker(t, 200, 40)
	text := "Annual report\n\n" + wordText(300) + "\n\nPage 2\n" + wordText(150) + "\n" + unbroken(450)

	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
	assert.Greater(t, len(first), 3)
}

func TestChunker_MaxLength(t *testing.T) {
	c := newTestChunker(t, 120, 20)
	text := wordText(200) + "\n\n" + unbroken(500) + "\n" + wordText(80)

	for _, chunk := range c.Split(text) {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 120)
		assert.NotEmpty(t, chunk)
	}
}

func TestChunker_WordOverlap(t *testing.T) {
	c := newTestChunker(t, 100, 30)
	chunks := c.Split(wordText(120))
	require.Greater(t, len(chunks), 2)

	for i := 0; i < len(chunks)-1; i++ {
		prev, next := chunks[i], chunks[i+1]
		shared := 0
		for j := 1; j <= len(next) && j <= 30; j++ {
			if strings.HasSuffix(prev, next[:j]) {
				shared = j
			}
		}
		assert.Greater(t, shared, 10, "chunk %d should start with the tail of chunk %d", i+1, i)
	}
}

func TestChunker_PrefersParagraphBreaks(t *testing.T) {
	c := newTestChunker(t, 60, 0)
	para1 := "First paragraph about operating income."
	para2 := "Second paragraph about net margin."

	chunks := c.Split(para1 + "\n\n" + para2)

	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestChunker_FallsBackToLineBreaks(t *testing.T) {
	c := newTestChunker(t, 30, 0)
	text := "line one is here\nline two is here\nline three here"

	chunks := c.Split(text)

	assert.Equal(t, []string{"line one is here", "line two is here", "line three here"}, chunks)
}

func TestChunker_MultibyteCountsCharacters(t *testing.T) {
	c := newTestChunker(t, 10, 2)
	text := strings.Repeat("€", 25)

	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
	}
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
}

func TestChunker_Chunks(t *testing.T) {
	c := newTestChunker(t, 1000, 150)

	records := c.Chunks("doc-1", "q3.pdf", unbroken(2500))

	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, domain.ChunkID("doc-1", i), r.ChunkID)
		assert.Equal(t, "doc-1", r.DocumentID)
		assert.Equal(t, "q3.pdf", r.Filename)
	}
	assert.Equal(t, "doc-1_2", records[2].ChunkID)
}

func TestSplitKeepingSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", " b", " c"}, splitKeepingSeparator("a b c", " "))
	assert.Equal(t, []string{"\n\nb"}, splitKeepingSeparator("\n\nb", "\n\n"))
	assert.Equal(t, []string{"x", "y"}, splitKeepingSeparator("xy", ""))
}
