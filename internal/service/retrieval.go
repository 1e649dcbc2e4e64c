package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/telemetry"
)

// DefaultTopK is the number of chunks retrieved when the caller does not ask for a count.
const DefaultTopK = 5

// RetrieveInput is a retrieval request. An empty DocumentIDs searches every document.
type RetrieveInput struct {
	Question    string
	TopK        int
	DocumentIDs []string
}

// RetrievalService embeds questions and ranks stored chunks against them.
type RetrievalService struct {
	embedder    *EmbeddingGateway
	store       VectorStore
	defaultTopK int
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(embedder *EmbeddingGateway, store VectorStore, defaultTopK int) *RetrievalService {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &RetrievalService{embedder: embedder, store: store, defaultTopK: defaultTopK}
}

// Retrieve returns the most similar chunks, best first. Finding nothing is not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, input RetrieveInput) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		Operation: "retrieve",
	})
	defer span.End()

	topK := input.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	vector, err := s.embedder.EmbedQuery(ctx, input.Question)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewStageError(domain.StageEmbedding, err)
	}

	hits, err := s.store.Search(ctx, vector, topK, input.DocumentIDs)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewStageError(domain.StageSearching, err)
	}
	if hits == nil {
		hits = []domain.ScoredChunk{}
	}

	return hits, nil
}
