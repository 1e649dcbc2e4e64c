package storage

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloo-solutions/finknow/internal/domain"
)

const archivePrefix = "documents/"

// ObjectStore is the subset of S3Client used by DocumentArchive.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	GenerateDownloadURL(ctx context.Context, key, filename string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

// DocumentArchive keeps the original bytes of every ingested document, keyed by document id.
type DocumentArchive struct {
	objects ObjectStore
}

func NewDocumentArchive(objects ObjectStore) *DocumentArchive {
	return &DocumentArchive{objects: objects}
}

// ObjectKey is the bucket key of a document's original file.
func ObjectKey(documentID string) string {
	return archivePrefix + documentID
}

func (a *DocumentArchive) Archive(ctx context.Context, documentID, filename string, data []byte) error {
	return a.objects.PutObject(ctx, ObjectKey(documentID), data, http.DetectContentType(data), map[string]string{
		"filename": filename,
	})
}

// DownloadURL presigns a download of the original file.
func (a *DocumentArchive) DownloadURL(ctx context.Context, documentID, filename string) (string, error) {
	key := ObjectKey(documentID)
	if _, err := a.objects.HeadObject(ctx, key); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", domain.ErrDocumentNotFound
		}
		return "", err
	}
	if filename == domain.UnknownFilename {
		filename = ""
	}
	return a.objects.GenerateDownloadURL(ctx, key, filename)
}

func (a *DocumentArchive) Delete(ctx context.Context, documentID string) error {
	return a.objects.DeleteObject(ctx, ObjectKey(documentID))
}
