package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/finknow/internal/telemetry"
)

const (
	// DefaultBatchSize caps the number of texts sent in one embedding request.
	DefaultBatchSize = 128
	// DefaultQueryPrefix marks retrieval queries for asymmetric embedding models.
	DefaultQueryPrefix = "query: "
	// DefaultPassagePrefix marks stored passages for asymmetric embedding models.
	DefaultPassagePrefix = "passage: "
)

// EmbeddingConfig controls batching and the role prefixes of the gateway.
type EmbeddingConfig struct {
	BatchSize     int
	QueryPrefix   string
	PassagePrefix string
}

// DefaultEmbeddingConfig returns the gateway defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BatchSize:     DefaultBatchSize,
		QueryPrefix:   DefaultQueryPrefix,
		PassagePrefix: DefaultPassagePrefix,
	}
}

// EmbeddingGateway splits embedding work into capped requests and applies the query and passage prefixes.
type EmbeddingGateway struct {
	client EmbeddingClient
	cfg    EmbeddingConfig
}

// NewEmbeddingGateway creates a new EmbeddingGateway instance
func NewEmbeddingGateway(client EmbeddingClient, cfg EmbeddingConfig) *EmbeddingGateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &EmbeddingGateway{client: client, cfg: cfg}
}

// BatchSize returns the maximum number of texts per request.
func (g *EmbeddingGateway) BatchSize() int {
	return g.cfg.BatchSize
}

// Embed returns one vector per text in input order. Inputs larger than the batch cap are sent as
// consecutive requests. An empty input makes no request.
func (g *EmbeddingGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "EmbeddingGateway.Embed", telemetry.SpanAttributes{
		Operation: "embed",
	})
	defer span.End()

	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))
		batch, err := g.client.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		if len(batch) != end-start {
			err := fmt.Errorf("embedding provider returned %d vectors for %d texts", len(batch), end-start)
			span.SetError(err)
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedPassages embeds document chunks with the passage prefix.
func (g *EmbeddingGateway) EmbedPassages(ctx context.Context, passages []string) ([][]float32, error) {
	return g.Embed(ctx, withPrefix(g.cfg.PassagePrefix, passages))
}

// EmbedQuery embeds a single question with the query prefix.
func (g *EmbeddingGateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{g.cfg.QueryPrefix + query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func withPrefix(prefix string, texts []string) []string {
	if prefix == "" {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = prefix + t
	}
	return out
}
