package search

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/api-universe/vector"
	"github.com/sweetpotato0/api-universe/vector/inmemory"
)

type keywordEmbedder struct{}

var keywordSpace = []string{"sms", "payment", "auth", "storage"}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(keywordSpace))
	lower := strings.ToLower(text)
	for idx, kw := range keywordSpace {
		if strings.Contains(lower, kw) {
			vec[idx] = 1
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := k.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (k *keywordEmbedder) Dimension() int { return len(keywordSpace) }

func seedSearcher(t *testing.T) *Semantic {
	t.Helper()

	store := inmemory.NewInMemoryVectorStore()
	searcher, err := NewSemantic(&keywordEmbedder{}, store)
	if err != nil {
		t.Fatalf("NewSemantic error: %v", err)
	}

	ctx := context.Background()
	seed := []struct {
		id   string
		text string
		md   Metadata
	}{
		{"twilio-overview", "Twilio sends sms messages worldwide", Metadata{APIName: "Twilio", Kind: "overview"}},
		{"adyen-checkout", "Adyen payment checkout endpoint", Metadata{APIName: "Adyen", Kind: "endpoint", Method: "POST", Path: "/checkout"}},
		{"authentiq-login", "Authentiq auth push sign-in", Metadata{APIName: "Authentiq", Kind: "endpoint", Method: "POST", Path: "/login"}},
	}
	for _, s := range seed {
		if err := searcher.Index(ctx, s.id, s.text, s.md); err != nil {
			t.Fatalf("Index error: %v", err)
		}
	}
	return searcher
}

func TestSemanticSearchReturnsMetadata(t *testing.T) {
	searcher := seedSearcher(t)

	results, err := searcher.Search(context.Background(), "send sms internationally", 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Metadata.APIName != "Twilio" {
		t.Errorf("expected Twilio first, got %q", results[0].Metadata.APIName)
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive similarity, got %f", results[0].Score)
	}
}

func TestSemanticSearchEndpointMetadataRoundTrip(t *testing.T) {
	searcher := seedSearcher(t)

	results, err := searcher.Search(context.Background(), "payment checkout", 1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	md := results[0].Metadata
	if md.Kind != "endpoint" || md.Method != "POST" || md.Path != "/checkout" {
		t.Errorf("endpoint metadata lost: %+v", md)
	}
}

func TestSemanticSearchRejectsEmptyQuery(t *testing.T) {
	searcher := seedSearcher(t)

	if _, err := searcher.Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestCosineRerankerReorders(t *testing.T) {
	emb := &keywordEmbedder{}
	reranker := NewCosineReranker(emb)

	results := []Result{
		{Text: "Adyen payment checkout", Metadata: Metadata{APIName: "Adyen"}, Score: 0.9},
		{Text: "Twilio sms sending", Metadata: Metadata{APIName: "Twilio"}, Score: 0.1},
	}

	reranked, err := reranker.Rerank(context.Background(), "sms provider", results, 2)
	if err != nil {
		t.Fatalf("Rerank error: %v", err)
	}
	if reranked[0].Metadata.APIName != "Twilio" {
		t.Errorf("expected Twilio promoted to first, got %q", reranked[0].Metadata.APIName)
	}
}

func TestCosineRerankerTopKCap(t *testing.T) {
	emb := &keywordEmbedder{}
	reranker := NewCosineReranker(emb)

	results := []Result{
		{Text: "auth api"},
		{Text: "sms api"},
		{Text: "storage api"},
	}

	reranked, err := reranker.Rerank(context.Background(), "auth", results, 2)
	if err != nil {
		t.Fatalf("Rerank error: %v", err)
	}
	if len(reranked) != 2 {
		t.Errorf("expected 2 results after cap, got %d", len(reranked))
	}
}

var _ vector.Embedder = (*keywordEmbedder)(nil)
