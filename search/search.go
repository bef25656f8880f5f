// Package search provides semantic lookup over the indexed API-spec corpus.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/api-universe/pkg/logging"
	"github.com/sweetpotato0/api-universe/vector"
)

// Metadata describes where a retrieved passage came from.
type Metadata struct {
	APIName   string `json:"api_name"`
	Kind      string `json:"kind"` // "overview" or "endpoint"
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`
}

// Result is a single ranked passage returned from semantic search.
type Result struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
}

// Searcher is the lookup contract the answering pipelines depend on.
// Implementations must be deterministic for identical index state.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Semantic implements Searcher by embedding the query and running a
// similarity lookup against a vector store.
type Semantic struct {
	embedder vector.Embedder
	store    vector.VectorStore
	logger   *slog.Logger
}

// NewSemantic creates a semantic searcher over the given embedder and store.
func NewSemantic(embedder vector.Embedder, store vector.VectorStore) (*Semantic, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	return &Semantic{
		embedder: embedder,
		store:    store,
		logger:   logging.WithComponent("semantic_search"),
	}, nil
}

// Search embeds the query and returns the topK closest passages with their
// metadata. Scores are cosine similarities computed against the stored vectors
// so every store backend reports on the same scale.
func (s *Semantic) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	embeddings, err := s.store.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]Result, 0, len(embeddings))
	for _, emb := range embeddings {
		results = append(results, Result{
			Text:     emb.Text,
			Metadata: metadataFromMap(emb.Metadata),
			Score:    vector.CosineSimilarity(queryVector, emb.Vector),
		})
	}

	s.logger.Debug("semantic search completed", "query", query, "hits", len(results))
	return results, nil
}

// Index adds a passage to the underlying store. Serving only needs Search;
// Index exists for tests, evaluation seeding and small corpora.
func (s *Semantic) Index(ctx context.Context, id, text string, md Metadata) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed passage: %w", err)
	}
	return s.store.AddEmbedding(ctx, &vector.Embedding{
		ID:       id,
		Vector:   vec,
		Text:     text,
		Metadata: md.toMap(),
	})
}

func (md Metadata) toMap() map[string]string {
	out := map[string]string{
		"api_name": md.APIName,
		"kind":     md.Kind,
	}
	if md.Method != "" {
		out["method"] = md.Method
	}
	if md.Path != "" {
		out["path"] = md.Path
	}
	if md.SourceRef != "" {
		out["source_ref"] = md.SourceRef
	}
	return out
}

func metadataFromMap(m map[string]string) Metadata {
	return Metadata{
		APIName:   m["api_name"],
		Kind:      m["kind"],
		Method:    m["method"],
		Path:      m["path"],
		SourceRef: m["source_ref"],
	}
}
