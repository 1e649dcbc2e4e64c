package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/finknow/internal/cache"
	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/extract"
	"github.com/cloo-solutions/finknow/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	extractor *MockTextExtractor
	client    *MockEmbeddingClient
	store     *MockVectorStore
	cache     *MockContentCache
	uuid      *MockUUIDGenerator
	chunker   *Chunker
	svc       *IngestionService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	chunker, err := NewChunker(ChunkConfig{ChunkSize: 24, ChunkOverlap: 0})
	require.NoError(t, err)

	f := &ingestFixture{
		extractor: new(MockTextExtractor),
		client:    new(MockEmbeddingClient),
		store:     new(MockVectorStore),
		cache:     new(MockContentCache),
		uuid:      new(MockUUIDGenerator),
		chunker:   chunker,
	}
	gateway := NewEmbeddingGateway(f.client, EmbeddingConfig{BatchSize: 2, PassagePrefix: DefaultPassagePrefix})
	f.svc = NewIngestionService(f.extractor, chunker, gateway, f.store, f.cache, f.uuid)
	return f
}

var reportPages = []domain.Page{
	{Number: 1, Text: "Revenue rose twelve percent in the third quarter."},
	{Number: 2, Text: "Operating costs were flat year over year."},
}

func TestIngest_NewDocument(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	data := []byte("%PDF-1.4 report")
	hash := ContentHash(data)

	expected := f.chunker.Chunks("doc-1", "q3.pdf", extract.JoinPages(reportPages))
	require.Greater(t, len(expected), 2)
	totalBatches := (len(expected) + 1) / 2

	f.cache.On("Lookup", hash).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(unitVectors, nil)
	f.store.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Record", hash, "doc-1").Return(nil)

	var progress [][2]int
	result, err := f.svc.Ingest(ctx, domain.BytesSource{Data: data, Filename: "q3.pdf"}, domain.ProgressFunc(func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}))

	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, hash, result.ContentHash)
	assert.Equal(t, "q3.pdf", result.Filename)
	assert.Equal(t, len(expected), result.NumChunks)
	assert.Equal(t, totalBatches, result.Batches)
	assert.False(t, result.CacheHit)

	require.Len(t, progress, totalBatches)
	for i, p := range progress {
		assert.Equal(t, [2]int{i + 1, totalBatches}, p)
	}

	var stored []domain.ChunkRecord
	for _, call := range f.store.Calls {
		if call.Method == "Upsert" {
			stored = append(stored, call.Arguments.Get(1).([]domain.ChunkRecord)...)
		}
	}
	assert.Equal(t, expected, stored)

	for _, call := range f.client.Calls {
		for _, text := range call.Arguments.Get(1).([]string) {
			assert.Contains(t, text, DefaultPassagePrefix)
		}
	}
	f.cache.AssertExpectations(t)
}

func TestIngest_CacheHitSkipsPipeline(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 report")

	f.cache.On("Lookup", ContentHash(data)).Return("doc-9", true)

	result, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "q3.pdf"}, nil)

	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	assert.Equal(t, "doc-9", result.DocumentID)
	assert.Zero(t, result.NumChunks)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	f.client.AssertNotCalled(t, "EmbedTexts", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	f.uuid.AssertNotCalled(t, "NewString")
}

func TestIngest_EmptyFileYieldsNoChunks(t *testing.T) {
	chunker, err := NewChunker(ChunkConfig{ChunkSize: 24, ChunkOverlap: 0})
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"empty":      {},
		"whitespace": []byte("   \n "),
	} {
		t.Run(name, func(t *testing.T) {
			client := new(MockEmbeddingClient)
			uuid := new(MockUUIDGenerator)
			uuid.On("NewString").Return("doc-empty")
			store := memstore.New(3)
			contentCache := cache.Load(filepath.Join(t.TempDir(), "cache.json"))

			gateway := NewEmbeddingGateway(client, EmbeddingConfig{BatchSize: 2})
			svc := NewIngestionService(extract.Auto{}, chunker, gateway, store, contentCache, uuid)

			result, err := svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "empty.txt"}, nil)

			require.NoError(t, err)
			assert.Zero(t, result.NumChunks)
			assert.Zero(t, result.Batches)
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, 0, contentCache.Len())
			client.AssertNotCalled(t, "EmbedTexts", mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_SourceReadFailure(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.svc.Ingest(context.Background(), PathSource{Path: filepath.Join(t.TempDir(), "missing.pdf")}, nil)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageReceived, stageErr.Stage)
	assert.Contains(t, err.Error(), "reading failed")
}

func TestIngest_PathSourceUsesBaseName(t *testing.T) {
	f := newIngestFixture(t)
	path := filepath.Join(t.TempDir(), "annual report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	f.cache.On("Lookup", mock.Anything).Return("doc-5", true)

	result, err := f.svc.Ingest(context.Background(), PathSource{Path: path}, nil)

	require.NoError(t, err)
	assert.Equal(t, "annual report.pdf", result.Filename)
}

func TestIngest_ExtractionFailure(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("not a pdf")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(nil, extract.ErrNotPDF)

	_, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "x.txt"}, nil)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageExtracting, stageErr.Stage)
	assert.Equal(t, "doc-1", stageErr.DocumentID)
	assert.Contains(t, err.Error(), "extraction failed")
	f.cache.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestIngest_NoTextStoresNothing(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 scanned")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return([]domain.Page{}, nil)

	result, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "scan.pdf"}, nil)

	require.NoError(t, err)
	assert.Zero(t, result.NumChunks)
	assert.Zero(t, result.Batches)
	f.client.AssertNotCalled(t, "EmbedTexts", mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestIngest_EmbeddingFailureKeepsStoredBatches(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 report")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(unitVectors, nil).Once()
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded")).Once()
	f.store.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var progressCalls int
	_, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "q3.pdf"}, domain.ProgressFunc(func(int, int) {
		progressCalls++
	}))

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageEmbedding, stageErr.Stage)
	assert.Equal(t, 1, stageErr.BatchesStored)
	assert.Equal(t, 1, progressCalls)
	f.store.AssertNumberOfCalls(t, "Upsert", 1)
	f.cache.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestIngest_StoreFailure(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 report")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(unitVectors, nil)
	f.store.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(domain.ProviderError("vector store", errors.New("connection refused")))

	_, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "q3.pdf"}, nil)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageStoring, stageErr.Stage)
	assert.Zero(t, stageErr.BatchesStored)
	assert.Equal(t, domain.ErrCodeProvider, domain.CodeOf(err))
}

func TestIngest_CacheWriteFailureIsNotFatal(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 report")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(unitVectors, nil)
	f.store.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Record", mock.Anything, "doc-1").Return(errors.New("read-only filesystem"))

	result, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "q3.pdf"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.DocumentID)
}

func TestIngest_ArchivesOriginal(t *testing.T) {
	f := newIngestFixture(t)
	archive := new(MockDocumentArchive)
	f.svc.WithArchive(archive)
	data := []byte("%PDF-1.4 report")

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)
	f.client.On("EmbedTexts", mock.Anything, mock.Anything).Return(unitVectors, nil)
	f.store.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Record", mock.Anything, "doc-1").Return(nil)
	archive.On("Archive", mock.Anything, "doc-1", "q3.pdf", data).Return(errors.New("bucket missing"))

	result, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data, Filename: "q3.pdf"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.DocumentID)
	archive.AssertExpectations(t)
}

func TestIngest_UnknownFilename(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4")

	f.cache.On("Lookup", mock.Anything).Return("doc-2", true)

	result, err := f.svc.Ingest(context.Background(), domain.BytesSource{Data: data}, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.UnknownFilename, result.Filename)
}

func TestIngest_CancelledContext(t *testing.T) {
	f := newIngestFixture(t)
	data := []byte("%PDF-1.4 report")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.cache.On("Lookup", mock.Anything).Return("", false)
	f.uuid.On("NewString").Return("doc-1")
	f.extractor.On("Extract", mock.Anything, data).Return(reportPages, nil)

	_, err := f.svc.Ingest(ctx, domain.BytesSource{Data: data, Filename: "q3.pdf"}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	f.store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.Equal(t, ContentHash([]byte("a")), ContentHash([]byte("a")))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
}
