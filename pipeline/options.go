package pipeline

import (
	"context"
	"time"

	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/obs"
)

const (
	defaultTopK        = 5
	defaultMaxEvidence = 10
	defaultMaxTokens   = 400
	sourceTruncateLen  = 200

	// cacheModelMarker replaces the model name in traces and run records for
	// stages served from the transform cache without a model call.
	cacheModelMarker = "cache"
)

// TransformCache caches per-query classification and decomposition results.
// A nil cache disables caching; misses and errors are both reported as a
// plain miss.
type TransformCache interface {
	GetClassification(ctx context.Context, query string) (string, bool)
	SetClassification(ctx context.Context, query, queryType string)
	GetDecomposition(ctx context.Context, query string) ([]string, bool)
	SetDecomposition(ctx context.Context, query string, subQueries []string)
}

// TokenCounter reports how many model tokens a piece of text occupies. Used
// as a fallback when a provider reports no usage.
type TokenCounter interface {
	CountTokens(text string) int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGroundingThreshold sets the minimum grounding score below which the
// pipeline refines and retries. Zero disables refinement entirely.
func WithGroundingThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		p.threshold = threshold
	}
}

// WithMaxRetries bounds the number of refinement passes per run.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) {
		p.maxRetries = n
	}
}

// WithTopK sets the number of results fetched per sub-query.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		p.topK = k
	}
}

// WithMaxEvidence caps how many evidence items reach the generation and
// verification prompts.
func WithMaxEvidence(n int) Option {
	return func(p *Pipeline) {
		p.maxEvidence = n
	}
}

// WithMaxAnswerTokens caps the generated answer length.
func WithMaxAnswerTokens(n int64) Option {
	return func(p *Pipeline) {
		p.maxAnswerTokens = n
	}
}

// WithFastClient routes the classify and decompose calls to a cheaper model
// than the one used for generation and refinement.
func WithFastClient(client llm.Client) Option {
	return func(p *Pipeline) {
		p.fastClient = client
	}
}

// WithSink sets the observability sink that receives one record per run.
func WithSink(sink obs.Sink) Option {
	return func(p *Pipeline) {
		p.sink = sink
	}
}

// WithTransformCache enables caching of classification and decomposition.
func WithTransformCache(cache TransformCache) Option {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithTokenCounter sets a local token counter used when a provider response
// carries no usage data.
func WithTokenCounter(counter TokenCounter) Option {
	return func(p *Pipeline) {
		p.tokens = counter
	}
}

// WithCallTimeout bounds each LLM and search call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.callTimeout = d
	}
}
