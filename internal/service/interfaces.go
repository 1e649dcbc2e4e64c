package service

import (
	"context"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/google/uuid"
)

// EmbeddingClient embeds a list of texts in a single provider request, preserving order.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionClient runs a single-turn chat completion against a hosted language model.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// VectorStore persists chunk vectors with their payload and answers similarity queries.
type VectorStore interface {
	// EnsureCollection creates the collection if it is missing. An existing collection with a
	// different dimension is a configuration error.
	EnsureCollection(ctx context.Context) error
	// Upsert writes records[i] with vectors[i]; both slices must have the same length.
	Upsert(ctx context.Context, records []domain.ChunkRecord, vectors [][]float32) error
	// Search returns up to topK chunks by descending cosine similarity. A non-empty documentIDs
	// restricts hits to chunks of any of those documents.
	Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]domain.ScoredChunk, error)
	// Documents walks the whole store and returns each distinct document once.
	Documents(ctx context.Context) ([]domain.DocumentRef, error)
	// DocumentIDs is the set of document ids present in the store.
	DocumentIDs(ctx context.Context) (map[string]struct{}, error)
	// DeleteByDocumentIDs removes every chunk of the given documents.
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (domain.UpdateStatus, error)
	// Reset drops and recreates the collection.
	Reset(ctx context.Context) error
}

// TextExtractor turns raw file bytes into 1-based pages of text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) ([]domain.Page, error)
}

// ContentCache maps content hashes to document ids.
type ContentCache interface {
	Lookup(contentHash string) (string, bool)
	Record(contentHash, documentID string) error
	Forget(documentIDs ...string) (int, error)
	DocumentIndex() map[string]string
	Clear() error
}

// DocumentArchive keeps the original uploaded bytes of each document.
type DocumentArchive interface {
	Archive(ctx context.Context, documentID, filename string, data []byte) error
	DownloadURL(ctx context.Context, documentID, filename string) (string, error)
	Delete(ctx context.Context, documentID string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
