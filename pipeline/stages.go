package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sweetpotato0/api-universe/grounding"
	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/message"
	"github.com/sweetpotato0/api-universe/search"
)

// classify buckets the query by complexity. Malformed model output falls
// back to SIMPLE rather than failing the run. The bool reports whether the
// result was served from the transform cache without a model call.
func (p *Pipeline) classify(ctx context.Context, query string) (QueryType, bool, error) {
	if p.cache != nil {
		if cached, ok := p.cache.GetClassification(ctx, query); ok {
			if qt, valid := parseQueryType(cached); valid {
				return qt, true, nil
			}
		}
	}

	resp, err := p.fast().Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, classifyPrompt),
			message.NewMessage(message.RoleUser, query),
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("classify failed: %w", err)
	}

	queryType := QueryTypeSimple
	decoded, err := decodeJSON[struct {
		Type string `json:"type"`
	}](resp.Message.Text())
	if err == nil {
		if qt, valid := parseQueryType(decoded.Type); valid {
			queryType = qt
		}
	} else {
		p.logger.Warn("classification unparseable, defaulting to SIMPLE", "error", err)
	}

	if p.cache != nil {
		p.cache.SetClassification(ctx, query, string(queryType))
	}
	return queryType, false, nil
}

func parseQueryType(raw string) (QueryType, bool) {
	switch QueryType(strings.ToUpper(strings.TrimSpace(raw))) {
	case QueryTypeSimple:
		return QueryTypeSimple, true
	case QueryTypeCompare:
		return QueryTypeCompare, true
	case QueryTypeExplore:
		return QueryTypeExplore, true
	default:
		return "", false
	}
}

// decompose expands a complex query into sub-queries. SIMPLE queries
// short-circuit to [query] without a model call. Malformed output falls back
// to [query].
func (p *Pipeline) decompose(ctx context.Context, query string, queryType QueryType) ([]string, bool, error) {
	if queryType == QueryTypeSimple {
		return []string{query}, false, nil
	}

	if p.cache != nil {
		if cached, ok := p.cache.GetDecomposition(ctx, query); ok {
			return cached, true, nil
		}
	}

	resp, err := p.fast().Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, decomposePrompt),
			message.NewMessage(message.RoleUser, query),
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("decompose failed: %w", err)
	}

	subQueries := parseQueryList(resp.Message.Text())
	if len(subQueries) == 0 {
		p.logger.Warn("decomposition unparseable, falling back to original query")
		return []string{query}, false, nil
	}

	if p.cache != nil {
		p.cache.SetDecomposition(ctx, query, subQueries)
	}
	return subQueries, false, nil
}

// parseQueryList decodes a JSON string array, dropping blanks and capping
// the result at four entries. Returns nil when nothing usable was decoded.
func parseQueryList(raw string) []string {
	decoded, err := decodeJSON[[]string](raw)
	if err != nil {
		return nil
	}
	var out []string
	for _, q := range decoded {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == 4 {
			break
		}
	}
	return out
}

// retrieve fans the sub-queries out concurrently and merges results into the
// state's evidence set in sub-query submission order, deduplicating by text
// prefix across the whole run. Returns the number of items added.
func (p *Pipeline) retrieve(ctx context.Context, state *State) (int, error) {
	results := make([][]search.Result, len(state.SubQueries))
	errs := make([]error, len(state.SubQueries))

	var wg sync.WaitGroup
	for i, sq := range state.SubQueries {
		wg.Add(1)
		go func(i int, sq string) {
			defer wg.Done()
			callCtx := ctx
			var cancel context.CancelFunc
			if p.callTimeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
				defer cancel()
			}
			results[i], errs[i] = p.searcher.Search(callCtx, sq, p.topK)
		}(i, sq)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return 0, fmt.Errorf("retrieve failed: %w", err)
		}
	}

	added := 0
	for _, batch := range results {
		for _, item := range batch {
			if state.addEvidence(item) {
				added++
			}
		}
	}
	return added, nil
}

// generate renders an answer from the top evidence items. Comparison queries
// get a fixed-format table contract via the system prompt.
func (p *Pipeline) generate(ctx context.Context, state *State) (string, int64, error) {
	var sb strings.Builder
	for i, r := range state.topEvidence(p.maxEvidence) {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[Source %d] API: %s\n", i+1, r.Metadata.APIName)
		if r.Metadata.Kind == "endpoint" {
			fmt.Fprintf(&sb, "Endpoint: %s %s\n", r.Metadata.Method, r.Metadata.Path)
		}
		fmt.Fprintf(&sb, "Content: %s\n", r.Text)
	}

	resp, err := p.client.Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, generatePrompt),
			message.NewMessage(message.RoleUser, fmt.Sprintf("Search results:\n%s\n\nUser question: %s", sb.String(), state.Query)),
		},
		MaxTokens: p.maxAnswerTokens,
	})
	if err != nil {
		return "", 0, fmt.Errorf("generate failed: %w", err)
	}

	answer := resp.Message.Text()
	tokens := resp.CompletionTokens
	if tokens == 0 && p.tokens != nil {
		tokens = int64(p.tokens.CountTokens(answer))
	}
	return answer, tokens, nil
}

// verify audits the answer against the same evidence slice the generator
// saw, each passage truncated to bound prompt size.
func (p *Pipeline) verify(ctx context.Context, state *State) (*grounding.Report, error) {
	evidence := state.topEvidence(p.maxEvidence)
	sources := make([]grounding.Source, 0, len(evidence))
	for _, r := range evidence {
		sources = append(sources, grounding.Source{
			APIName: r.Metadata.APIName,
			Text:    truncate(r.Text, sourceTruncateLen),
		})
	}
	report, err := p.checker.Check(ctx, state.Answer, sources)
	if err != nil {
		return nil, fmt.Errorf("verify failed: %w", err)
	}
	return report, nil
}

// refine asks for new sub-queries targeting the unsupported claims.
// Malformed output degrades to a plain re-retrieval of the original query.
func (p *Pipeline) refine(ctx context.Context, query string, unsupported []string) ([]string, error) {
	claims, err := json.Marshal(unsupported)
	if err != nil {
		claims = []byte("[]")
	}

	resp, err := p.client.Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, refinePrompt),
			message.NewMessage(message.RoleUser, fmt.Sprintf("Original query: %s\nUnsupported claims: %s", query, claims)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("refine failed: %w", err)
	}

	refined := parseQueryList(resp.Message.Text())
	if len(refined) == 0 {
		p.logger.Warn("refinement unparseable, falling back to original query")
		return []string{query}, nil
	}
	return refined, nil
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
