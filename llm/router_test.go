package llm

import (
	"context"
	"errors"
	"testing"

	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/message"
)

type stubProvider struct {
	name     string
	model    string
	response string
	err      error
	calls    int
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.model }

func (s *stubProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &GenerateResponse{
		Message:          message.NewMessage(message.RoleAssistant, s.response),
		Model:            s.model,
		CompletionTokens: 7,
	}, nil
}

func TestRouterPrefersLowerPriority(t *testing.T) {
	primary := &stubProvider{name: "openai", model: "gpt-4o-mini", response: "from primary"}
	secondary := &stubProvider{name: "claude", model: "claude-sonnet", response: "from secondary"}

	router, err := NewRouter(
		WithProvider(secondary, 2),
		WithProvider(primary, 1),
	)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	resp, err := router.Generate(context.Background(), &GenerateRequest{
		Messages: []*message.Message{message.NewMessage(message.RoleUser, "hello")},
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Message.Text() != "from primary" {
		t.Errorf("expected primary response, got %q", resp.Message.Text())
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.calls)
	}
}

func TestRouterFallsBackOnFailure(t *testing.T) {
	primary := &stubProvider{name: "openai", model: "gpt-4o-mini", err: errors.New("rate limited")}
	secondary := &stubProvider{name: "claude", model: "claude-sonnet", response: "fallback answer"}

	router, err := NewRouter(
		WithProvider(primary, 1),
		WithProvider(secondary, 2),
	)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	resp, err := router.Generate(context.Background(), &GenerateRequest{
		Messages: []*message.Message{message.NewMessage(message.RoleUser, "hello")},
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Message.Text() != "fallback answer" {
		t.Errorf("expected fallback response, got %q", resp.Message.Text())
	}

	stats := router.Stats()
	if stats.Providers["openai"].Failures != 1 {
		t.Errorf("expected 1 failure for openai, got %d", stats.Providers["openai"].Failures)
	}
	if stats.Providers["claude"].Requests != 1 {
		t.Errorf("expected 1 request for claude, got %d", stats.Providers["claude"].Requests)
	}
}

func TestRouterAllProvidersFailed(t *testing.T) {
	primary := &stubProvider{name: "openai", model: "m", err: errors.New("down")}
	secondary := &stubProvider{name: "claude", model: "m", err: errors.New("also down")}

	router, err := NewRouter(
		WithProvider(primary, 1),
		WithProvider(secondary, 2),
	)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	_, err = router.Generate(context.Background(), &GenerateRequest{})
	if !errors.Is(err, apierrors.ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestRouterRequiresProvider(t *testing.T) {
	if _, err := NewRouter(); err == nil {
		t.Fatal("expected error for router without providers")
	}
}

func TestProviderErrorIsProviderUnavailable(t *testing.T) {
	err := &ProviderError{Provider: "openai", Err: errors.New("boom")}
	if !errors.Is(err, apierrors.ErrProviderUnavailable) {
		t.Error("ProviderError should match ErrProviderUnavailable")
	}
}

func TestRouterStatsTrafficShare(t *testing.T) {
	primary := &stubProvider{name: "openai", model: "m", response: "ok"}
	router, err := NewRouter(WithProvider(primary, 1))
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := router.Generate(context.Background(), &GenerateRequest{}); err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}

	stats := router.Stats()
	if stats.TotalRequests != 4 {
		t.Errorf("expected 4 total requests, got %d", stats.TotalRequests)
	}
	if got := stats.Providers["openai"].TrafficPct; got != 100 {
		t.Errorf("expected 100%% traffic share, got %.1f", got)
	}
}
