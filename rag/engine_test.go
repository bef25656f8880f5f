package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/message"
	"github.com/sweetpotato0/api-universe/search"
)

type stubLLM struct {
	response string
	err      error
	lastUser string
}

func (s *stubLLM) Name() string  { return "stub" }
func (s *stubLLM) Model() string { return "stub-model" }

func (s *stubLLM) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, m := range req.Messages {
		if m.Role == message.RoleUser {
			s.lastUser = m.Text()
		}
	}
	return &llm.GenerateResponse{
		Message:          message.NewMessage(message.RoleAssistant, s.response),
		Model:            "stub-model",
		PromptTokens:     120,
		CompletionTokens: 35,
	}, nil
}

type stubSearcher struct {
	results []search.Result
	err     error
	lastK   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int) ([]search.Result, error) {
	s.lastK = topK
	return s.results, s.err
}

func TestAskBuildsNumberedContext(t *testing.T) {
	model := &stubLLM{response: "Use Twilio. [Source 1]"}
	searcher := &stubSearcher{results: []search.Result{
		{Text: "Twilio sends SMS worldwide", Metadata: search.Metadata{APIName: "Twilio", Kind: "overview"}, Score: 0.91},
		{Text: "POST /messages sends one message", Metadata: search.Metadata{APIName: "Twilio", Kind: "endpoint", Method: "POST", Path: "/messages"}, Score: 0.85},
	}}

	engine, err := NewEngine(model, searcher, 5)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	answer, err := engine.Ask(context.Background(), "send SMS internationally")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}

	if !strings.Contains(model.lastUser, "[Source 1] API: Twilio") {
		t.Errorf("prompt missing numbered source: %q", model.lastUser)
	}
	if !strings.Contains(model.lastUser, "Endpoint: POST /messages") {
		t.Errorf("prompt missing endpoint line: %q", model.lastUser)
	}
	if answer.Text != "Use Twilio. [Source 1]" {
		t.Errorf("answer text = %q", answer.Text)
	}
	if answer.InputTokens != 120 || answer.OutputTokens != 35 {
		t.Errorf("token counts = %d/%d", answer.InputTokens, answer.OutputTokens)
	}
}

func TestAskTruncatesSourceSnippets(t *testing.T) {
	long := strings.Repeat("x", 500)
	engine, _ := NewEngine(&stubLLM{response: "ok"}, &stubSearcher{results: []search.Result{
		{Text: long, Metadata: search.Metadata{APIName: "Big", Kind: "overview"}},
	}}, 5)

	answer, err := engine.Ask(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(answer.Sources))
	}
	if got := len(answer.Sources[0].Text); got != 200 {
		t.Errorf("snippet length = %d, want 200", got)
	}
}

func TestAskDefaultsTopK(t *testing.T) {
	searcher := &stubSearcher{}
	engine, _ := NewEngine(&stubLLM{response: "ok"}, searcher, 0)

	if _, err := engine.Ask(context.Background(), "anything"); err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if searcher.lastK != 5 {
		t.Errorf("topK = %d, want default 5", searcher.lastK)
	}
}

func TestAskEmptyQuery(t *testing.T) {
	engine, _ := NewEngine(&stubLLM{}, &stubSearcher{}, 5)
	_, err := engine.Ask(context.Background(), "  ")
	if !errors.Is(err, apierrors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestAskSearchFailure(t *testing.T) {
	engine, _ := NewEngine(&stubLLM{}, &stubSearcher{err: errors.New("index offline")}, 5)
	if _, err := engine.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when search fails")
	}
}
