package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/extract"
	"github.com/cloo-solutions/finknow/internal/telemetry"
)

// IngestResult describes the outcome of one ingestion.
type IngestResult struct {
	DocumentID  string `json:"document_id"`
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	NumChunks   int    `json:"num_chunks"`
	Batches     int    `json:"batches"`
	CacheHit    bool   `json:"cache_hit"`
}

// IngestionService turns uploaded files into stored, searchable chunks.
type IngestionService struct {
	extractor TextExtractor
	chunker   *Chunker
	embedder  *EmbeddingGateway
	store     VectorStore
	cache     ContentCache
	archive   DocumentArchive
	uuidGen   UUIDGenerator
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(
	extractor TextExtractor,
	chunker *Chunker,
	embedder *EmbeddingGateway,
	store VectorStore,
	cache ContentCache,
	uuidGen UUIDGenerator,
) *IngestionService {
	return &IngestionService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		cache:     cache,
		uuidGen:   uuidGen,
	}
}

// WithArchive keeps a copy of every newly ingested file in archive.
func (s *IngestionService) WithArchive(archive DocumentArchive) *IngestionService {
	s.archive = archive
	return s
}

// ContentHash returns the lowercase hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest processes one file. Identical bytes seen before return the cached document id without any
// extraction or embedding. Otherwise the text is extracted, chunked and stored batch by batch, reporting
// progress after each stored batch. A failure stops at the failing batch; batches already stored stay
// stored and the content hash is not cached.
func (s *IngestionService) Ingest(ctx context.Context, src domain.FileSource, progress domain.ProgressObserver) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	data, err := src.Open(ctx)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewStageError(domain.StageReceived, err)
	}

	result := &IngestResult{
		ContentHash: ContentHash(data),
		Filename:    domain.NormalizeFilename(src.Name()),
	}

	if documentID, ok := s.cache.Lookup(result.ContentHash); ok {
		result.DocumentID = documentID
		result.CacheHit = true
		telemetry.AddBreadcrumb(ctx, "pipeline", "cache hit for "+documentID)
		log.Printf("ingest: %s already processed as %s, skipping", result.Filename, documentID)
		return result, nil
	}

	result.DocumentID = s.uuidGen.NewString()
	span.SetTag("document_id", result.DocumentID)
	fail := func(stage domain.Stage, err error) (*IngestResult, error) {
		span.EnterStage(ctx, string(stage), "failed for "+result.DocumentID)
		span.SetError(err)
		return nil, &domain.StageError{
			Stage:         stage,
			DocumentID:    result.DocumentID,
			BatchesStored: result.Batches,
			Err:           err,
		}
	}

	span.EnterStage(ctx, string(domain.StageExtracting), result.DocumentID)
	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return fail(domain.StageExtracting, err)
	}

	span.EnterStage(ctx, string(domain.StageChunking), result.DocumentID)
	chunks := s.chunker.Chunks(result.DocumentID, result.Filename, extract.JoinPages(pages))
	result.NumChunks = len(chunks)
	if len(chunks) == 0 {
		log.Printf("warning: ingest: %s produced no text chunks, nothing stored", result.Filename)
		return result, nil
	}

	span.EnterStage(ctx, string(domain.StageEmbedding), result.DocumentID)
	batchSize := s.embedder.BatchSize()
	totalBatches := (len(chunks) + batchSize - 1) / batchSize

	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return fail(domain.StageEmbedding, err)
		}

		batch := chunks[start:min(start+batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return fail(domain.StageEmbedding, err)
		}
		if err := s.store.Upsert(ctx, batch, vectors); err != nil {
			return fail(domain.StageStoring, err)
		}

		result.Batches++
		if progress != nil {
			progress.OnProgress(result.Batches, totalBatches)
		}
	}

	if err := s.cache.Record(result.ContentHash, result.DocumentID); err != nil {
		log.Printf("warning: ingest: failed to cache %s for %s: %v", result.ContentHash, result.DocumentID, err)
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, result.DocumentID, result.Filename, data); err != nil {
			log.Printf("warning: ingest: failed to archive %s: %v", result.DocumentID, err)
			telemetry.CaptureError(ctx, fmt.Errorf("archive %s: %w", result.DocumentID, err))
		}
	}

	span.EnterStage(ctx, string(domain.StageReady), result.DocumentID)
	log.Printf("ingest: stored %s as %s (%d chunks, %d batches)", result.Filename, result.DocumentID, result.NumChunks, result.Batches)
	return result, nil
}
