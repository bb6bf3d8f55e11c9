package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"seedling/internal/provider"
)

// sourceTimeout caps how long a single extraction may hold up its caller.
// The chat path runs extraction inline, so this stays short.
const sourceTimeout = 10 * time.Second

const extractSystemPrompt = `You identify the key concepts in a piece of text.
Return ONLY a JSON object of the form {"concepts": ["..."]}.
Concepts are lowercase nouns or short noun phrases worth defining on their own.
Skip filler words, verbs, and anything already trivial.`

// TextGenerator is the slice of the provider chain the source needs.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (provider.Result, error)
}

// LLMSource asks a generation chain to pick out concepts, expecting a JSON
// object back.
type LLMSource struct {
	gen TextGenerator
}

func NewLLMSource(gen TextGenerator) *LLMSource {
	return &LLMSource{gen: gen}
}

type conceptsPayload struct {
	Concepts []string `json:"concepts"`
}

func (s *LLMSource) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	res, err := s.gen.Generate(ctx, extractSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("generating concept list: %w", err)
	}

	var payload conceptsPayload
	if err := json.Unmarshal([]byte(extractJSONObject(res.Text)), &payload); err != nil {
		return nil, fmt.Errorf("parsing concept list from %s: %w", res.Provider, err)
	}
	return payload.Concepts, nil
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the first top-level JSON object in the text. Models wrap JSON in fences
// often enough that parsing raw output directly is a losing game.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
