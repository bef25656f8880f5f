package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/sweetpotato0/api-universe/vector"
)

// Reranker reorders search results, optionally refining similarity.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error)
}

// CosineReranker re-scores results by embedding both the query and each
// passage and sorting on cosine similarity. Useful when results were merged
// from several lookups and their original scores are not comparable.
type CosineReranker struct {
	embedder vector.Embedder
}

// NewCosineReranker creates a reranker based on cosine similarity.
func NewCosineReranker(embedder vector.Embedder) *CosineReranker {
	return &CosineReranker{embedder: embedder}
}

// Rerank implements the Reranker interface.
func (c *CosineReranker) Rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}

	queryVector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(results) {
		return nil, fmt.Errorf("expected %d passage embeddings, got %d", len(results), len(vectors))
	}

	reranked := make([]Result, len(results))
	copy(reranked, results)
	for i := range reranked {
		reranked[i].Score = vector.CosineSimilarity(queryVector, vectors[i])
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	return reranked[:topK], nil
}
