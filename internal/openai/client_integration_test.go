//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_EmbedTexts_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	vectors, err := client.EmbedTexts(ctx, []string{"passage: Net revenue rose 12%.", "query: How did revenue change?"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], DefaultEmbeddingDimensions)
}

func TestIntegration_Complete_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)

	answer, err := client.Complete(context.Background(), "Answer with one word.", "What color is the sky on a clear day?", 16)

	require.NoError(t, err)
	assert.NotEmpty(t, answer)
}
