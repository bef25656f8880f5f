// Package rag implements the single-pass ask flow: search once, generate a
// cited answer. The agentic refinement loop lives in the pipeline package.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/message"
	"github.com/sweetpotato0/api-universe/pkg/logging"
	"github.com/sweetpotato0/api-universe/search"
)

const systemPrompt = `You are API Universe, an AI-powered API discovery assistant.
Your job is to help developers find and understand APIs based on their needs.

Rules:
- Only use information from the provided search results to answer.
- Cite which API each piece of information comes from.
- If the search results don't contain relevant information, say so honestly.
- Be concise and practical. Developers want actionable answers.
- When comparing APIs, use a structured format.`

const sourceSnippetLen = 200

// Engine answers questions with one retrieval pass and one generation call.
type Engine struct {
	client   llm.Client
	searcher search.Searcher
	topK     int
	logger   *slog.Logger
}

// Answer is the result of one ask.
type Answer struct {
	Query        string         `json:"query"`
	Text         string         `json:"answer"`
	Sources      []SourceDetail `json:"sources"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
}

// SourceDetail is a retrieved passage summarized for the caller, its text
// truncated to a snippet.
type SourceDetail struct {
	APIName string  `json:"api_name"`
	Score   float32 `json:"score"`
	Kind    string  `json:"type"`
	Text    string  `json:"text"`
}

// NewEngine creates an Engine. topK <= 0 defaults to 5.
func NewEngine(client llm.Client, searcher search.Searcher, topK int) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		client:   client,
		searcher: searcher,
		topK:     topK,
		logger:   logging.WithComponent("rag"),
	}, nil
}

// Ask retrieves evidence for the query and generates a cited answer from it.
func (e *Engine) Ask(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", apierrors.ErrInvalidInput)
	}

	results, err := e.searcher.Search(ctx, query, e.topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	resp, err := e.client.Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, systemPrompt),
			message.NewMessage(message.RoleUser, fmt.Sprintf("Search results:\n%s\n\nUser question: %s", buildContext(results), query)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate failed: %w", err)
	}

	e.logger.Info("ask complete",
		"results", len(results),
		"output_tokens", resp.CompletionTokens,
	)

	return &Answer{
		Query:        query,
		Text:         resp.Message.Text(),
		Sources:      summarize(results),
		InputTokens:  resp.PromptTokens,
		OutputTokens: resp.CompletionTokens,
	}, nil
}

// buildContext formats the search results into numbered sources for the
// generation prompt.
func buildContext(results []search.Result) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[Source %d] API: %s\n", i+1, r.Metadata.APIName)
		fmt.Fprintf(&sb, "Score: %.3f\n", r.Score)
		if r.Metadata.Kind == "endpoint" {
			fmt.Fprintf(&sb, "Endpoint: %s %s\n", r.Metadata.Method, r.Metadata.Path)
		}
		fmt.Fprintf(&sb, "Content: %s\n", r.Text)
	}
	return sb.String()
}

func summarize(results []search.Result) []SourceDetail {
	sources := make([]SourceDetail, 0, len(results))
	for _, r := range results {
		text := r.Text
		if runes := []rune(text); len(runes) > sourceSnippetLen {
			text = string(runes[:sourceSnippetLen])
		}
		sources = append(sources, SourceDetail{
			APIName: r.Metadata.APIName,
			Score:   r.Score,
			Kind:    r.Metadata.Kind,
			Text:    text,
		})
	}
	return sources
}
