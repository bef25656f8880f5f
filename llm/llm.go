// Package llm defines the client contract shared by all model providers and a
// priority-ordered router that fails over between them.
package llm

import (
	"context"
	"fmt"

	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/message"
)

// GenerateRequest bundles inputs for a non-streaming model invocation.
type GenerateRequest struct {
	Messages  []*message.Message
	MaxTokens int64 // 0 means provider default
}

// GenerateResponse captures the model reply for non-streaming calls.
type GenerateResponse struct {
	Message          *message.Message
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Client defines the interface for LLM providers
type Client interface {
	// Name returns the provider name used in stats and trace records
	Name() string

	// Model returns the model identifier this client is configured with
	Model() string

	// Generate generates a response from the model
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// ProviderError wraps an upstream provider failure with the provider name.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is reports a match for the shared provider-unavailable sentinel so callers
// can use errors.Is without knowing the concrete provider.
func (e *ProviderError) Is(target error) bool {
	return target == apierrors.ErrProviderUnavailable
}
