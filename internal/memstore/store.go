// Package memstore is an in-process vector store for development and tests.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/finknow/internal/domain"
)

type entry struct {
	record domain.ChunkRecord
	vector []float32
	norm   float64
	seq    int
}

// Store keeps points in memory keyed by point id. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	points     map[string]*entry
	nextSeq    int
}

// New returns an empty store for vectors of the given dimension.
func New(dimensions int) *Store {
	return &Store{dimensions: dimensions, points: make(map[string]*entry)}
}

// EnsureCollection is a no-op; the collection always exists.
func (s *Store) EnsureCollection(ctx context.Context) error {
	if s.dimensions <= 0 {
		return domain.ConfigurationError("embedding dimensions must be positive", "FINKNOW_EMBEDDING_DIMENSIONS")
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []domain.ChunkRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", domain.ErrLengthMismatch, len(records), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store has %d", domain.ErrDimensionMismatch, records[i].ChunkID, len(v), s.dimensions)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range records {
		id := domain.PointID(r.ChunkID)
		vec := append([]float32(nil), vectors[i]...)
		seq := s.nextSeq
		if existing, ok := s.points[id]; ok {
			seq = existing.seq
		} else {
			s.nextSeq++
		}
		s.points[id] = &entry{record: r, vector: vec, norm: norm(vec), seq: seq}
	}
	return nil
}

// Search ranks by cosine similarity; ties keep insertion order.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d", domain.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	results := []domain.ScoredChunk{}
	if topK <= 0 {
		return results, nil
	}

	var allowed map[string]struct{}
	if len(documentIDs) > 0 {
		allowed = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = struct{}{}
		}
	}

	s.mu.RLock()
	type candidate struct {
		e     *entry
		score float64
	}
	candidates := make([]candidate, 0, len(s.points))
	qnorm := norm(vector)
	for _, e := range s.points {
		if allowed != nil {
			if _, ok := allowed[e.record.DocumentID]; !ok {
				continue
			}
		}
		candidates = append(candidates, candidate{e: e, score: cosine(vector, qnorm, e.vector, e.norm)})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	for i := 0; i < len(candidates) && i < topK; i++ {
		results = append(results, domain.ScoredChunk{ChunkRecord: candidates[i].e.record, Score: float32(candidates[i].score)})
	}
	return results, nil
}

// Documents returns each stored document once, in first-insertion order.
func (s *Store) Documents(ctx context.Context) ([]domain.DocumentRef, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.points))
	for _, e := range s.points {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	seen := make(map[string]struct{})
	refs := []domain.DocumentRef{}
	for _, e := range entries {
		if _, ok := seen[e.record.DocumentID]; ok {
			continue
		}
		seen[e.record.DocumentID] = struct{}{}
		refs = append(refs, domain.DocumentRef{ID: e.record.DocumentID, Filename: domain.NormalizeFilename(e.record.Filename)})
	}
	return refs, nil
}

func (s *Store) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{})
	for _, e := range s.points {
		ids[e.record.DocumentID] = struct{}{}
	}
	return ids, nil
}

func (s *Store) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (domain.UpdateStatus, error) {
	if len(documentIDs) == 0 {
		return domain.UpdateStatusCompleted, nil
	}
	drop := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.points {
		if _, ok := drop[e.record.DocumentID]; ok {
			delete(s.points, id)
		}
	}
	return domain.UpdateStatusCompleted, nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[string]*entry)
	s.nextSeq = 0
	return nil
}

// Len returns the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
