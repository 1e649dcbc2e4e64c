package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/finknow/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ChunkConfig controls how document text is split. Sizes count Unicode code points.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultChunkConfig provides the defaults used for ingestion.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    1000,
		ChunkOverlap: 150,
		Separators:   DefaultSeparators,
	}
}

// Chunker splits text recursively on the largest separator that occurs, then merges the pieces back into
// overlapping chunks of at most ChunkSize characters. Output depends only on the text and the config.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker validates cfg and returns a Chunker.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidChunkConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrInvalidChunkConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split returns the ordered chunks of text. Empty or whitespace-only text yields no chunks.
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.cfg.Separators)
}

// Chunks splits a document's text into records carrying the document identity.
func (c *Chunker) Chunks(documentID, filename, text string) []domain.ChunkRecord {
	parts := c.Split(text)
	records := make([]domain.ChunkRecord, len(parts))
	for i, part := range parts {
		records[i] = domain.ChunkRecord{
			ChunkID:    domain.ChunkID(documentID, i),
			Text:       part,
			DocumentID: documentID,
			Filename:   filename,
		}
	}
	return records
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < c.cfg.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, c.merge(good)...)
	}
	return chunks
}

// merge greedily packs pieces into chunks. When a chunk is emitted, pieces are dropped from the front of
// the window until it fits the overlap budget and leaves room for the next piece.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.cfg.ChunkSize && len(window) > 0 {
			if chunk, ok := joinChunk(window); ok {
				chunks = append(chunks, chunk)
			}
			for total > c.cfg.ChunkOverlap || (total+n > c.cfg.ChunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}

	if chunk, ok := joinChunk(window); ok {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepingSeparator splits on sep and re-attaches each separator to the start of the piece after it.
// An empty separator splits into single characters.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		pieces = make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	pieces = make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, p := range parts[1:] {
		pieces = append(pieces, sep+p)
	}
	return pieces
}

func joinChunk(window []string) (string, bool) {
	chunk := strings.TrimSpace(strings.Join(window, ""))
	return chunk, chunk != ""
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
