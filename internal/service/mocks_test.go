package service

import (
	"context"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient is a mock implementation of EmbeddingClient. A func([]string) [][]float32 return
// value is called with the request texts.
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if fn, ok := args.Get(0).(func([]string) [][]float32); ok {
		return fn(texts), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// unitVectors returns one 2-dimensional vector per text.
func unitVectors(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out
}

// MockCompletionClient is a mock implementation of CompletionClient
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, maxTokens)
	return args.String(0), args.Error(1)
}

// MockVectorStore is a mock implementation of VectorStore
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) EnsureCollection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockVectorStore) Upsert(ctx context.Context, records []domain.ChunkRecord, vectors [][]float32) error {
	args := m.Called(ctx, records, vectors)
	return args.Error(0)
}

func (m *MockVectorStore) Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, vector, topK, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

func (m *MockVectorStore) Documents(ctx context.Context) ([]domain.DocumentRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentRef), args.Error(1)
}

func (m *MockVectorStore) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockVectorStore) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (domain.UpdateStatus, error) {
	args := m.Called(ctx, documentIDs)
	return args.Get(0).(domain.UpdateStatus), args.Error(1)
}

func (m *MockVectorStore) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTextExtractor is a mock implementation of TextExtractor
type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) Extract(ctx context.Context, data []byte) ([]domain.Page, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Page), args.Error(1)
}

// MockContentCache is a mock implementation of ContentCache
type MockContentCache struct {
	mock.Mock
}

func (m *MockContentCache) Lookup(contentHash string) (string, bool) {
	args := m.Called(contentHash)
	return args.String(0), args.Bool(1)
}

func (m *MockContentCache) Record(contentHash, documentID string) error {
	args := m.Called(contentHash, documentID)
	return args.Error(0)
}

func (m *MockContentCache) Forget(documentIDs ...string) (int, error) {
	args := m.Called(documentIDs)
	return args.Int(0), args.Error(1)
}

func (m *MockContentCache) DocumentIndex() map[string]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]string)
}

func (m *MockContentCache) Clear() error {
	args := m.Called()
	return args.Error(0)
}

// MockDocumentArchive is a mock implementation of DocumentArchive
type MockDocumentArchive struct {
	mock.Mock
}

func (m *MockDocumentArchive) Archive(ctx context.Context, documentID, filename string, data []byte) error {
	args := m.Called(ctx, documentID, filename, data)
	return args.Error(0)
}

func (m *MockDocumentArchive) DownloadURL(ctx context.Context, documentID, filename string) (string, error) {
	args := m.Called(ctx, documentID, filename)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentArchive) Delete(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

// MockRetriever is a mock implementation of Retriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, input RetrieveInput) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	mock.Mock
}

func (m *MockUUIDGenerator) NewString() string {
	args := m.Called()
	return args.String(0)
}
