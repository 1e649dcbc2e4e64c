package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/finknow/internal/cache"
	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var storedDocs = []domain.DocumentRef{
	{ID: "c-doc", Filename: "c.pdf"},
	{ID: "a-doc", Filename: "a.pdf"},
	{ID: "b-doc", Filename: domain.UnknownFilename},
}

func TestDocumentService_ListPages(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)
	ctx := context.Background()

	store.On("Documents", mock.Anything).Return(storedDocs, nil)
	cache.On("DocumentIndex").Return(map[string]string{"a-doc": "hash-a"})

	first, err := svc.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []DocumentSummary{
		{ID: "a-doc", Filename: "a.pdf", ContentHash: "hash-a"},
		{ID: "b-doc", Filename: domain.UnknownFilename},
	}, first.Items)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, first.Cursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []DocumentSummary{{ID: "c-doc", Filename: "c.pdf"}}, second.Items)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.Cursor)
}

func TestDocumentService_ListInvalidCursor(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("Documents", mock.Anything).Return(storedDocs, nil)
	cache.On("DocumentIndex").Return(map[string]string{})

	_, err := svc.List(context.Background(), "!!!", 10)

	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestDocumentService_ListStoreError(t *testing.T) {
	store := new(MockVectorStore)
	svc := NewDocumentService(store, new(MockContentCache), nil)

	store.On("Documents", mock.Anything).Return(nil, errors.New("unreachable"))

	_, err := svc.List(context.Background(), "", 10)

	assert.ErrorContains(t, err, "failed to list documents")
}

func TestDocumentService_Get(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("Documents", mock.Anything).Return(storedDocs, nil)
	cache.On("DocumentIndex").Return(map[string]string{"c-doc": "hash-c"})

	doc, err := svc.Get(context.Background(), "c-doc")
	require.NoError(t, err)
	assert.Equal(t, &DocumentSummary{ID: "c-doc", Filename: "c.pdf", ContentHash: "hash-c"}, doc)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentService_DeleteForgetsCacheAndArchive(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	archive := new(MockDocumentArchive)
	svc := NewDocumentService(store, cache, archive)

	store.On("DeleteByDocumentIDs", mock.Anything, []string{"a-doc", "b-doc"}).Return(domain.UpdateStatusCompleted, nil)
	cache.On("Forget", []string{"a-doc", "b-doc"}).Return(2, nil)
	archive.On("Delete", mock.Anything, "a-doc").Return(nil)
	archive.On("Delete", mock.Anything, "b-doc").Return(errors.New("no such key"))

	result, err := svc.Delete(context.Background(), []string{"a-doc", "", "b-doc", "a-doc"})

	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{DocumentIDs: []string{"a-doc", "b-doc"}, Status: domain.UpdateStatusCompleted, Forgotten: 2}, result)
	store.AssertExpectations(t)
	archive.AssertExpectations(t)
}

func TestDocumentService_DeleteAcknowledged(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("DeleteByDocumentIDs", mock.Anything, []string{"a-doc"}).Return(domain.UpdateStatusAcknowledged, nil)
	cache.On("Forget", []string{"a-doc"}).Return(1, nil)

	result, err := svc.Delete(context.Background(), []string{"a-doc"})

	require.NoError(t, err)
	assert.Equal(t, domain.UpdateStatusAcknowledged, result.Status)
}

func TestDocumentService_DeleteRequiresIDs(t *testing.T) {
	store := new(MockVectorStore)
	svc := NewDocumentService(store, new(MockContentCache), nil)

	_, err := svc.Delete(context.Background(), []string{""})

	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
	store.AssertNotCalled(t, "DeleteByDocumentIDs", mock.Anything, mock.Anything)
}

func TestDocumentService_DeleteStoreError(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("DeleteByDocumentIDs", mock.Anything, mock.Anything).Return(domain.UpdateStatus(""), errors.New("boom"))

	_, err := svc.Delete(context.Background(), []string{"a-doc"})

	assert.Error(t, err)
	cache.AssertNotCalled(t, "Forget", mock.Anything)
}

func TestDocumentService_Consistency(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("DocumentIDs", mock.Anything).Return(map[string]struct{}{"a": {}, "b": {}, "c": {}}, nil)
	cache.On("DocumentIndex").Return(map[string]string{"a": "h1", "z": "h2", "y": "h3"})

	report, err := svc.Consistency(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.StoreDocuments)
	assert.Equal(t, 3, report.CacheEntries)
	assert.Equal(t, []string{"b", "c"}, report.MissingFromCache)
	assert.Equal(t, []string{"y", "z"}, report.StaleCacheEntries)
	assert.False(t, report.Consistent())
}

func TestDocumentService_PruneCache(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("DocumentIDs", mock.Anything).Return(map[string]struct{}{"a": {}}, nil)
	cache.On("DocumentIndex").Return(map[string]string{"a": "h1", "gone": "h2"})
	cache.On("Forget", []string{"gone"}).Return(1, nil)

	pruned, err := svc.PruneCache(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
}

func TestDocumentService_PruneCacheKeepsConcurrentIngestion(t *testing.T) {
	store := new(MockVectorStore)
	contentCache := cache.Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, contentCache.Record("h1", "a"))
	svc := NewDocumentService(store, contentCache, nil)

	// An ingestion stores "fresh" after the store listing and records its hash before the check ends.
	store.On("DocumentIDs", mock.Anything).Run(func(mock.Arguments) {
		require.NoError(t, contentCache.Record("h2", "fresh"))
	}).Return(map[string]struct{}{"a": {}}, nil)

	pruned, err := svc.PruneCache(context.Background())

	require.NoError(t, err)
	assert.Zero(t, pruned)
	id, ok := contentCache.Lookup("h2")
	assert.True(t, ok)
	assert.Equal(t, "fresh", id)
}

func TestDocumentService_PruneCacheNothingStale(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("DocumentIDs", mock.Anything).Return(map[string]struct{}{"a": {}}, nil)
	cache.On("DocumentIndex").Return(map[string]string{"a": "h1"})

	pruned, err := svc.PruneCache(context.Background())

	require.NoError(t, err)
	assert.Zero(t, pruned)
	cache.AssertNotCalled(t, "Forget", mock.Anything)
}

func TestDocumentService_Reset(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("Reset", mock.Anything).Return(nil)
	cache.On("Clear").Return(nil)

	require.NoError(t, svc.Reset(context.Background()))
	cache.AssertExpectations(t)
}

func TestDocumentService_ResetStoreFailureKeepsCache(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	svc := NewDocumentService(store, cache, nil)

	store.On("Reset", mock.Anything).Return(errors.New("forbidden"))

	assert.ErrorContains(t, svc.Reset(context.Background()), "failed to reset vector store")
	cache.AssertNotCalled(t, "Clear")
}

func TestDocumentService_DownloadURL(t *testing.T) {
	store := new(MockVectorStore)
	cache := new(MockContentCache)
	archive := new(MockDocumentArchive)
	svc := NewDocumentService(store, cache, archive)

	store.On("Documents", mock.Anything).Return(storedDocs, nil)
	cache.On("DocumentIndex").Return(map[string]string{})
	archive.On("DownloadURL", mock.Anything, "a-doc", "a.pdf").Return("https://files/a", nil)

	url, err := svc.DownloadURL(context.Background(), "a-doc")

	require.NoError(t, err)
	assert.Equal(t, "https://files/a", url)
}

func TestDocumentService_DownloadURLWithoutArchive(t *testing.T) {
	svc := NewDocumentService(new(MockVectorStore), new(MockContentCache), nil)

	_, err := svc.DownloadURL(context.Background(), "a-doc")

	assert.ErrorIs(t, err, domain.ErrArchiveNotAvailable)
}
