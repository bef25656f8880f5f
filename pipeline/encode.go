package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON strips markdown code fences a model may wrap around its output
// and decodes the remainder into T. Callers handle the error with their
// stage-specific fallback.
func decodeJSON[T any](raw string) (T, error) {
	var out T
	clean := sanitizeJSON(raw)
	if clean == "" {
		return out, fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

func sanitizeJSON(raw string) string {
	clean := strings.TrimSpace(raw)
	clean = strings.ReplaceAll(clean, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}
