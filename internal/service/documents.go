package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/pagination"
	"github.com/cloo-solutions/finknow/internal/telemetry"
)

// DocumentSummary is a stored document with its content hash when the local cache knows it.
type DocumentSummary struct {
	ID          string `json:"document_id"`
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash,omitempty"`
}

// DeleteResult reports a bulk deletion.
type DeleteResult struct {
	DocumentIDs []string            `json:"document_ids"`
	Status      domain.UpdateStatus `json:"status"`
	Forgotten   int                 `json:"cache_entries_removed"`
}

// ConsistencyReport compares the vector store with the content cache.
type ConsistencyReport struct {
	StoreDocuments int `json:"store_documents"`
	CacheEntries   int `json:"cache_entries"`
	// MissingFromCache are stored documents the cache has no hash for; re-uploading them duplicates chunks.
	MissingFromCache []string `json:"missing_from_cache"`
	// StaleCacheEntries are cached documents with no chunks left in the store; re-uploading them is skipped.
	StaleCacheEntries []string `json:"stale_cache_entries"`
}

// Consistent reports whether every stored document is cached and every cached document is stored.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.MissingFromCache) == 0 && len(r.StaleCacheEntries) == 0
}

// DocumentService manages stored documents and keeps the content cache in step with the store.
type DocumentService struct {
	store   VectorStore
	cache   ContentCache
	archive DocumentArchive
}

// NewDocumentService creates a new DocumentService instance. archive may be nil.
func NewDocumentService(store VectorStore, cache ContentCache, archive DocumentArchive) *DocumentService {
	return &DocumentService{store: store, cache: cache, archive: archive}
}

// List returns one page of stored documents ordered by id.
func (s *DocumentService) List(ctx context.Context, cursor string, limit int) (*pagination.PageResult[DocumentSummary], error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	refs, err := s.store.Documents(ctx)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	hashes := s.cache.DocumentIndex()
	summaries := make([]DocumentSummary, len(refs))
	for i, ref := range refs {
		summaries[i] = DocumentSummary{ID: ref.ID, Filename: ref.Filename, ContentHash: hashes[ref.ID]}
	}

	page, err := pagination.Paginate(summaries, cursor, limit, func(d DocumentSummary) string { return d.ID })
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return page, nil
}

// Get returns a single stored document.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*DocumentSummary, error) {
	refs, err := s.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, ref := range refs {
		if ref.ID == documentID {
			hash := s.cache.DocumentIndex()[ref.ID]
			return &DocumentSummary{ID: ref.ID, Filename: ref.Filename, ContentHash: hash}, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

// Delete removes all chunks of the documents and forgets their cache entries, so a later upload of the
// same bytes is ingested again.
func (s *DocumentService) Delete(ctx context.Context, documentIDs []string) (*DeleteResult, error) {
	ids := dedupe(documentIDs)
	if len(ids) == 0 {
		return nil, domain.ErrMissingRequiredField
	}

	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		Operation: "delete",
	})
	defer span.End()

	status, err := s.store.DeleteByDocumentIDs(ctx, ids)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to delete documents: %w", err)
	}
	if !status.Completed() {
		log.Printf("warning: delete: store reported status %q for %d documents", status, len(ids))
	}

	forgotten, err := s.cache.Forget(ids...)
	if err != nil {
		log.Printf("warning: delete: failed to update cache: %v", err)
	}

	if s.archive != nil {
		for _, id := range ids {
			if err := s.archive.Delete(ctx, id); err != nil {
				log.Printf("warning: delete: failed to remove archived file %s: %v", id, err)
			}
		}
	}

	return &DeleteResult{DocumentIDs: ids, Status: status, Forgotten: forgotten}, nil
}

// Consistency compares the document ids in the store with the ids referenced by the cache. The cache is read
// first: ingestion records a hash only after storing its chunks, so an ingestion finishing mid-check never
// shows up as a stale cache entry.
func (s *DocumentService) Consistency(ctx context.Context) (*ConsistencyReport, error) {
	cached := s.cache.DocumentIndex()
	stored, err := s.store.DocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate stored documents: %w", err)
	}

	report := &ConsistencyReport{
		StoreDocuments:    len(stored),
		CacheEntries:      len(cached),
		MissingFromCache:  []string{},
		StaleCacheEntries: []string{},
	}
	for id := range stored {
		if _, ok := cached[id]; !ok {
			report.MissingFromCache = append(report.MissingFromCache, id)
		}
	}
	for id := range cached {
		if _, ok := stored[id]; !ok {
			report.StaleCacheEntries = append(report.StaleCacheEntries, id)
		}
	}
	sort.Strings(report.MissingFromCache)
	sort.Strings(report.StaleCacheEntries)
	return report, nil
}

// PruneCache forgets cache entries whose documents are no longer in the store.
func (s *DocumentService) PruneCache(ctx context.Context) (int, error) {
	report, err := s.Consistency(ctx)
	if err != nil {
		return 0, err
	}
	if len(report.StaleCacheEntries) == 0 {
		return 0, nil
	}
	return s.cache.Forget(report.StaleCacheEntries...)
}

// Reset drops every stored chunk and clears the cache.
func (s *DocumentService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}
	if err := s.cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// DownloadURL returns a temporary link to the original uploaded file.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID string) (string, error) {
	if s.archive == nil {
		return "", domain.ErrArchiveNotAvailable
	}
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return "", err
	}
	return s.archive.DownloadURL(ctx, doc.ID, doc.Filename)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
