package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	DefaultScrollPageSize = 250
	cosineMetric          = "cosine"

	// pgvector's default and upper bound for hnsw.ef_search.
	defaultEFSearch = 40
	maxEFSearch     = 1000
)

var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var reservedTables = map[string]struct{}{
	"vector_collections": {},
	"schema_migrations":  {},
}

// ValidateCollectionName checks that name can be used as a table name.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", domain.ErrInvalidCollection, name, collectionNamePattern)
	}
	if _, ok := reservedTables[name]; ok {
		return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidCollection, name)
	}
	return nil
}

// ChunkStore keeps one collection of chunk vectors in a PostgreSQL table with a pgvector column.
// Collections are registered in vector_collections with their fixed dimension and metric.
type ChunkStore struct {
	db         dbtx
	tx         *TxRunner
	collection string
	table      string
	dimensions int
	pageSize   int
}

// NewChunkStore validates the collection settings. The table is created by EnsureCollection.
func NewChunkStore(pool *pgxpool.Pool, collection string, dimensions, pageSize int) (*ChunkStore, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if dimensions <= 0 {
		return nil, domain.ConfigurationError("embedding dimensions must be positive", "FINKNOW_EMBEDDING_DIMENSIONS")
	}
	if pageSize <= 0 {
		pageSize = DefaultScrollPageSize
	}
	return &ChunkStore{
		db:         pool,
		tx:         NewTxRunner(pool),
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
		dimensions: dimensions,
		pageSize:   pageSize,
	}, nil
}

func providerError(err error) error {
	return domain.ProviderError("vector store", err)
}

// EnsureCollection registers the collection and creates its table and indexes when missing.
func (s *ChunkStore) EnsureCollection(ctx context.Context) error {
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		var dimension int
		err := tx.QueryRow(ctx,
			`SELECT dimension FROM vector_collections WHERE name = $1 FOR UPDATE`,
			s.collection,
		).Scan(&dimension)
		switch {
		case err == nil:
			if dimension != s.dimensions {
				return fmt.Errorf("%w: collection %s has %d dimensions, configured %d", domain.ErrDimensionMismatch, s.collection, dimension, s.dimensions)
			}
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx,
				`INSERT INTO vector_collections (name, dimension, metric) VALUES ($1, $2, $3)`,
				s.collection, s.dimensions, cosineMetric,
			); err != nil {
				return err
			}
			log.Printf("pgvector: registered collection %s (%d dimensions, cosine)", s.collection, s.dimensions)
		default:
			return err
		}
		return s.createTable(ctx, tx)
	})
	if err != nil {
		if domain.IsConfiguration(err) {
			return err
		}
		return providerError(fmt.Errorf("failed to ensure collection %s: %w", s.collection, err))
	}
	return nil
}

func (s *ChunkStore) createTable(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			point_id    UUID PRIMARY KEY,
			chunk_id    TEXT NOT NULL,
			document_id TEXT NOT NULL,
			filename    TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL,
			extra       JSONB,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{s.collection + "_document_id_idx"}.Sanitize(), s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.collection + "_embedding_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes all records in one transaction; a re-upserted chunk replaces its previous row.
func (s *ChunkStore) Upsert(ctx context.Context, records []domain.ChunkRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", domain.ErrLengthMismatch, len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (point_id, chunk_id, document_id, filename, text, extra, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (point_id) DO UPDATE SET
			chunk_id = EXCLUDED.chunk_id,
			document_id = EXCLUDED.document_id,
			filename = EXCLUDED.filename,
			text = EXCLUDED.text,
			extra = EXCLUDED.extra,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for i, r := range records {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d", domain.ErrDimensionMismatch, r.ChunkID, len(vectors[i]), s.dimensions)
		}
		extra, err := encodeExtra(r.Extra)
		if err != nil {
			return err
		}
		batch.Queue(query,
			domain.PointID(r.ChunkID), r.ChunkID, r.DocumentID, r.Filename, r.Text, extra,
			pgvector.NewVector(vectors[i]),
		)
	}

	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return err
			}
		}
		return results.Close()
	})
	if err != nil {
		return providerError(fmt.Errorf("failed to upsert %d chunks: %w", len(records), err))
	}
	return nil
}

// Search orders rows by cosine distance; the score is cosine similarity.
//
// The HNSW index hands back at most hnsw.ef_search candidates before the document filter is applied, so
// filtered searches and searches wider than ef_search run in a transaction with an iterative, strictly
// ordered index scan that keeps going until LIMIT rows pass the filter.
func (s *ChunkStore) Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", domain.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if topK <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	args := []any{pgvector.NewVector(vector), topK}
	where := ""
	if len(documentIDs) > 0 {
		where = "WHERE document_id = ANY($3)"
		args = append(args, documentIDs)
	}
	query := fmt.Sprintf(
		`SELECT chunk_id, document_id, filename, text, extra, 1 - (embedding <=> $1) AS score
		 FROM %s %s
		 ORDER BY embedding <=> $1
		 LIMIT $2`, s.table, where)

	if where == "" && topK <= defaultEFSearch {
		results, err := scanHits(s.db.Query(ctx, query, args...))
		if err != nil {
			return nil, providerError(fmt.Errorf("failed to search: %w", err))
		}
		return results, nil
	}

	var results []domain.ScoredChunk
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL hnsw.iterative_scan = strict_order`); err != nil {
			return err
		}
		efSearch := strconv.Itoa(min(max(topK, defaultEFSearch), maxEFSearch))
		if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, efSearch); err != nil {
			return err
		}
		var err error
		results, err = scanHits(tx.Query(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, providerError(fmt.Errorf("failed to search: %w", err))
	}
	return results, nil
}

func scanHits(rows pgx.Rows, err error) ([]domain.ScoredChunk, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.ScoredChunk{}
	for rows.Next() {
		var hit domain.ScoredChunk
		var extra []byte
		var score float64
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.Filename, &hit.Text, &extra, &score); err != nil {
			return nil, err
		}
		if hit.Extra, err = decodeExtra(extra); err != nil {
			return nil, err
		}
		hit.Score = float32(score)
		results = append(results, hit)
	}
	return results, rows.Err()
}

// Documents walks distinct documents in id order, one keyset page at a time.
func (s *ChunkStore) Documents(ctx context.Context) ([]domain.DocumentRef, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT ON (document_id) document_id, filename
		 FROM %s
		 WHERE document_id > $1
		 ORDER BY document_id, created_at
		 LIMIT $2`, s.table)

	refs := []domain.DocumentRef{}
	after := ""
	for {
		rows, err := s.db.Query(ctx, query, after, s.pageSize)
		if err != nil {
			return nil, providerError(fmt.Errorf("failed to list documents: %w", err))
		}
		page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DocumentRef, error) {
			var ref domain.DocumentRef
			err := row.Scan(&ref.ID, &ref.Filename)
			ref.Filename = domain.NormalizeFilename(ref.Filename)
			return ref, err
		})
		if err != nil {
			return nil, providerError(fmt.Errorf("failed to list documents: %w", err))
		}

		refs = append(refs, page...)
		if len(page) < s.pageSize {
			return refs, nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *ChunkStore) DocumentIDs(ctx context.Context) (map[string]struct{}, error) {
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

// DeleteByDocumentIDs deletes synchronously, so the status is always completed.
func (s *ChunkStore) DeleteByDocumentIDs(ctx context.Context, documentIDs []string) (domain.UpdateStatus, error) {
	if len(documentIDs) == 0 {
		return domain.UpdateStatusCompleted, nil
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = ANY($1)`, s.table), documentIDs)
	if err != nil {
		return "", providerError(fmt.Errorf("failed to delete documents: %w", err))
	}
	log.Printf("pgvector: deleted %d chunks of %d documents", tag.RowsAffected(), len(documentIDs))
	return domain.UpdateStatusCompleted, nil
}

// Reset drops the table and its registry entry, then recreates both.
func (s *ChunkStore) Reset(ctx context.Context) error {
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM vector_collections WHERE name = $1`, s.collection)
		return err
	})
	if err != nil {
		return providerError(fmt.Errorf("failed to drop collection %s: %w", s.collection, err))
	}
	log.Printf("pgvector: dropped collection %s", s.collection)
	return s.EnsureCollection(ctx)
}

func encodeExtra(extra map[string]string) ([]byte, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra payload: %w", err)
	}
	return data, nil
}

func decodeExtra(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var extra map[string]string
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to decode extra payload: %w", err)
	}
	return extra, nil
}
