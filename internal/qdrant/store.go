package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cloo-solutions/finknow/internal/domain"
)

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors json.RawMessage `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type point struct {
	ID      string             `json:"id"`
	Vector  []float32          `json:"vector"`
	Payload domain.ChunkRecord `json:"payload"`
}

type fieldMatch struct {
	Value string `json:"value"`
}

type condition struct {
	Key   string     `json:"key"`
	Match fieldMatch `json:"match"`
}

// filter matches points whose document_id equals any of the conditions.
type filter struct {
	Should []condition `json:"should"`
}

type scoredPoint struct {
	Score   float32            `json:"score"`
	Payload domain.ChunkRecord `json:"payload"`
}

type scrollRequest struct {
	Limit       int             `json:"limit"`
	Offset      json.RawMessage `json:"offset,omitempty"`
	WithPayload []string        `json:"with_payload"`
	WithVector  bool            `json:"with_vector"`
}

type scrollResult struct {
	Points []struct {
		Payload struct {
			DocumentID string `json:"document_id"`
			Filename   string `json:"filename"`
		} `json:"payload"`
	} `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

type updateResult struct {
	Status string `json:"status"`
}

func documentFilter(documentIDs []string) *filter {
	if len(documentIDs) == 0 {
		return nil
	}
	f := &filter{Should: make([]condition, len(documentIDs))}
	for i, id := range documentIDs {
		f.Should[i] = condition{Key: documentIDField, Match: fieldMatch{Value: id}}
	}
	return f
}

// EnsureCollection creates the collection with cosine distance when it does not exist and indexes the
// document_id payload field.
func (s *Store) EnsureCollection(ctx context.Context) error {
	var info collectionInfo
	err := s.do(ctx, "GET", s.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		var params vectorParams
		if err := json.Unmarshal(info.Config.Params.Vectors, &params); err != nil || params.Size == 0 {
			return fmt.Errorf("%w: collection %s does not use a single unnamed vector", domain.ErrDimensionMismatch, s.collection)
		}
		if params.Size != s.dimensions {
			return fmt.Errorf("%w: collection %s has %d dimensions, configured %d", domain.ErrDimensionMismatch, s.collection, params.Size, s.dimensions)
		}
	case isNotFound(err):
		body := map[string]any{"vectors": vectorParams{Size: s.dimensions, Distance: "Cosine"}}
		if err := s.do(ctx, "PUT", s.collectionPath(""), body, nil); err != nil {
			return providerError(fmt.Errorf("failed to create collection %s: %w", s.collection, err))
		}
		log.Printf("qdrant: created collection %s (%d dimensions, cosine)", s.collection, s.dimensions)
	default:
		return providerError(fmt.Errorf("failed to get collection %s: %w", s.collection, err))
	}

	index := map[string]any{"field_name": documentIDField, "field_schema": "keyword"}
	if err := s.do(ctx, "PUT", s.collectionPath("/index?wait=true"), index, nil); err != nil {
		return providerError(fmt.Errorf("failed to index %s: %w", documentIDField, err))
	}
	return nil
}

// Upsert writes one point per record, keyed by the record's chunk id.
func (s *Store) Upsert(ctx context.Context, records []domain.ChunkRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", domain.ErrLengthMismatch, len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]point, len(records))
	for i, r := range records {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d", domain.ErrDimensionMismatch, r.ChunkID, len(vectors[i]), s.dimensions)
		}
		points[i] = point{ID: domain.PointID(r.ChunkID), Vector: vectors[i], Payload: r}
	}

	if err := s.do(ctx, "PUT", s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return providerError(fmt.Errorf("failed to upsert %d points: %w", len(points), err))
	}
	return nil
}

// Search ranks points by cosine similarity, optionally restricted to the given documents.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", domain.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if topK <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := documentFilter(documentIDs); f != nil {
		body["filter"] = f
	}

	var hits []scoredPoint
	if err := s.do(ctx, "POST", s.collectionPath("/points/search"), body, &hits); err != nil {
		return nil, providerError(fmt.Errorf("failed to search: %w", err))
	}

	results := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		results[i] = domain.ScoredChunk{ChunkRecord: h.Payload, Score: h.Score}
	}
	return results, nil
}

// Documents scrolls the whole collection reading only document_id and filename.
func (s *Store) Documents(ctx context.Context) ([]domain.DocumentRef, error) {
	seen := make(map[string]struct{})
	var refs []domain.DocumentRef

	req := scrollRequest{
		Limit:       s.pageSize,
		WithPayload: []string{documentIDField, filenameField},
	}
	for {
		var page scrollResult
		if err := s.do(ctx, "POST", s.collectionPath("/points/scroll"), req, &page); err != nil {
			return nil, providerError(fmt.Errorf("failed to scroll points: %w", err))
		}

		for _, p := range page.Points {
			id := p.Payload.DocumentID
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			refs = append(refs, domain.DocumentRef{ID: id, Filename: domain.NormalizeFilename(p.Payload.Filename)})
		}

		if isNullOffset(page.NextPageOffset) {
			break
		}
		req.Offset = page.NextPageOffset
	}

	return refs, nil
}

// DocumentIDs returns the set of document ids in the collection.
func (s *Store) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	refs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		ids[r.ID] = struct{}{}
	}
	return ids, nil
}

// DeleteByDocumentIDs removes every point whose document_id is in documentIDs.
func (s *Store) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (domain.UpdateStatus, error) {
	if len(documentIDs) == 0 {
		return domain.UpdateStatusCompleted, nil
	}

	var result updateResult
	body := map[string]any{"filter": documentFilter(documentIDs)}
	if err := s.do(ctx, "POST", s.collectionPath("/points/delete?wait=true"), body, &result); err != nil {
		return "", providerError(fmt.Errorf("failed to delete points: %w", err))
	}
	return domain.UpdateStatus(result.Status), nil
}

// Reset drops the collection and creates it again empty.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.do(ctx, "DELETE", s.collectionPath(""), nil, nil); err != nil && !isNotFound(err) {
		return providerError(fmt.Errorf("failed to drop collection %s: %w", s.collection, err))
	}
	log.Printf("qdrant: dropped collection %s", s.collection)
	return s.EnsureCollection(ctx)
}

func isNullOffset(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
