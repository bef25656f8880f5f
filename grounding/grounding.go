// Package grounding verifies generated answers against the evidence that
// produced them, claim by claim.
package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/message"
	"github.com/sweetpotato0/api-universe/pkg/logging"
)

// Verdict is the support status assigned to a single claim.
type Verdict string

const (
	VerdictSupported   Verdict = "SUPPORTED"
	VerdictUnsupported Verdict = "UNSUPPORTED"
	VerdictPartial     Verdict = "PARTIAL"
)

// Claim is one factual statement extracted from an answer together with
// the verdict against the sources.
type Claim struct {
	Text    string  `json:"claim"`
	Verdict Verdict `json:"status"`
	Source  string  `json:"source,omitempty"`
}

// Report is the outcome of checking an answer against its sources.
// Score is always SupportedCount/TotalCount, or 0 when no claims
// were extracted.
type Report struct {
	Score          float64 `json:"grounding_score"`
	SupportedCount int     `json:"supported_count"`
	TotalCount     int     `json:"total_count"`
	Claims         []Claim `json:"claims"`
}

// Unsupported returns the text of every claim with an UNSUPPORTED verdict.
// PARTIAL claims are deliberately excluded.
func (r *Report) Unsupported() []string {
	var out []string
	for _, c := range r.Claims {
		if c.Verdict == VerdictUnsupported {
			out = append(out, c.Text)
		}
	}
	return out
}

// Source is a single evidence passage presented to the checker.
type Source struct {
	APIName string
	Text    string
}

// Checker audits an answer against the evidence used to generate it.
type Checker interface {
	Check(ctx context.Context, answer string, sources []Source) (*Report, error)
}

const checkerPrompt = `You are a grounding verification system. Your job is to check whether each claim in an AI-generated answer is supported by the provided source documents.

For each claim in the answer, determine if it is:
- SUPPORTED: Directly backed by information in the sources
- UNSUPPORTED: Not found in the sources
- PARTIAL: Loosely related but not directly stated

Respond in this exact JSON format:
{
  "claims": [
    {"claim": "the claim text", "status": "SUPPORTED", "source": "which source"},
    {"claim": "the claim text", "status": "UNSUPPORTED", "source": null}
  ],
  "supported_count": 0,
  "total_count": 0,
  "grounding_score": 0.0
}`

// LLMChecker implements Checker with a language model call. Unparseable
// model output degrades to an empty report with score 0 rather than an
// error, so a broken verifier can still drive the retry guard.
type LLMChecker struct {
	client llm.Client
	logger *slog.Logger
}

var _ Checker = (*LLMChecker)(nil)

func NewLLMChecker(client llm.Client) (*LLMChecker, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	return &LLMChecker{
		client: client,
		logger: logging.WithComponent("grounding"),
	}, nil
}

// Model reports the underlying model identifier for trace records.
func (c *LLMChecker) Model() string {
	return c.client.Model()
}

func (c *LLMChecker) Check(ctx context.Context, answer string, sources []Source) (*Report, error) {
	var sb strings.Builder
	for i, s := range sources {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		name := s.APIName
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&sb, "[Source %d] %s: %s", i+1, name, s.Text)
	}

	resp, err := c.client.Generate(ctx, &llm.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, checkerPrompt),
			message.NewMessage(message.RoleUser, fmt.Sprintf("Sources:\n%s\n\nAnswer to verify:\n%s", sb.String(), answer)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("grounding check failed: %w", err)
	}

	report, ok := parseReport(resp.Message.Text())
	if !ok {
		c.logger.Warn("grounding response unparseable, defaulting to score 0")
		return &Report{Claims: []Claim{}}, nil
	}
	return report, nil
}

// parseReport decodes a model response into a Report. The score and counts
// are recomputed from the claim verdicts so a model that miscounts cannot
// skew the retry guard.
func parseReport(raw string) (*Report, bool) {
	clean := stripFences(raw)

	var decoded struct {
		Claims []Claim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(clean), &decoded); err != nil {
		return nil, false
	}

	report := &Report{Claims: decoded.Claims}
	if report.Claims == nil {
		report.Claims = []Claim{}
	}
	for _, claim := range report.Claims {
		switch claim.Verdict {
		case VerdictSupported, VerdictUnsupported, VerdictPartial:
		default:
			return nil, false
		}
		report.TotalCount++
		if claim.Verdict == VerdictSupported {
			report.SupportedCount++
		}
	}
	if report.TotalCount > 0 {
		report.Score = float64(report.SupportedCount) / float64(report.TotalCount)
	}
	return report, true
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) string {
	clean := strings.TrimSpace(raw)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	if idx := strings.IndexByte(clean, '\n'); idx >= 0 {
		clean = clean[idx+1:]
	}
	if idx := strings.LastIndex(clean, "```"); idx >= 0 {
		clean = clean[:idx]
	}
	return strings.TrimSpace(clean)
}
