package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	args := m.Called(ctx, key, data, contentType, metadata)
	return args.Error(0)
}

func (m *MockObjectStore) GenerateDownloadURL(ctx context.Context, key, filename string) (string, error) {
	args := m.Called(ctx, key, filename)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockObjectStore) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ObjectMetadata), args.Error(1)
}

func TestDocumentArchive_Archive(t *testing.T) {
	objects := new(MockObjectStore)
	archive := NewDocumentArchive(objects)
	ctx := context.Background()
	data := []byte("%PDF-1.4\n...")

	objects.On("PutObject", ctx, "documents/doc-1", data, "application/pdf", map[string]string{"filename": "q3.pdf"}).Return(nil)

	require.NoError(t, archive.Archive(ctx, "doc-1", "q3.pdf", data))
	objects.AssertExpectations(t)
}

func TestDocumentArchive_DownloadURL(t *testing.T) {
	objects := new(MockObjectStore)
	archive := NewDocumentArchive(objects)
	ctx := context.Background()

	objects.On("HeadObject", ctx, "documents/doc-1").Return(&ObjectMetadata{ContentLength: 10}, nil)
	objects.On("GenerateDownloadURL", ctx, "documents/doc-1", "q3.pdf").Return("https://s3/doc-1?sig", nil)

	url, err := archive.DownloadURL(ctx, "doc-1", "q3.pdf")

	require.NoError(t, err)
	assert.Equal(t, "https://s3/doc-1?sig", url)
}

func TestDocumentArchive_DownloadURL_UnknownFilename(t *testing.T) {
	objects := new(MockObjectStore)
	archive := NewDocumentArchive(objects)
	ctx := context.Background()

	objects.On("HeadObject", ctx, "documents/doc-1").Return(&ObjectMetadata{}, nil)
	objects.On("GenerateDownloadURL", ctx, "documents/doc-1", "").Return("https://s3/doc-1", nil)

	_, err := archive.DownloadURL(ctx, "doc-1", domain.UnknownFilename)

	require.NoError(t, err)
	objects.AssertExpectations(t)
}

func TestDocumentArchive_DownloadURL_Missing(t *testing.T) {
	objects := new(MockObjectStore)
	archive := NewDocumentArchive(objects)
	ctx := context.Background()

	objects.On("HeadObject", ctx, "documents/gone").Return(nil, ErrObjectNotFound)

	_, err := archive.DownloadURL(ctx, "gone", "x.pdf")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	objects.AssertNotCalled(t, "GenerateDownloadURL", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentArchive_Delete(t *testing.T) {
	objects := new(MockObjectStore)
	archive := NewDocumentArchive(objects)
	ctx := context.Background()

	objects.On("DeleteObject", ctx, "documents/doc-1").Return(errors.New("denied"))

	assert.EqualError(t, archive.Delete(ctx, "doc-1"), "denied")
}
