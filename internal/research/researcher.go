// Package research produces an explanation for a concept: web snippets
// grounded through an LLM when possible, degrading to pure synthesis or raw
// web text when parts of the stack are down.
package research

import (
	"context"
	"log/slog"
	"strings"

	"seedling/internal/provider"
	"seedling/internal/search"
)

// Provenance values recorded on learned concepts.
const (
	SourceWebLLM  = "web+llm"  // web context summarized by a provider
	SourceLLMOnly = "llm-only" // no usable web context, provider knowledge only
	SourceWebRaw  = "web-raw"  // providers down, raw snippets passed through
)

const maxSearchResults = 5

const groundedSystem = `You explain concepts clearly and concisely using the
provided web context. Write 2-4 sentences a motivated reader can absorb in
one pass. If the context contradicts itself, prefer the mainstream reading.`

const pureSystem = `You explain concepts clearly and concisely from your own
knowledge. Write 2-4 sentences. If you genuinely do not know the concept,
reply with an empty message.`

// WebSearcher is the slice of the search chain the researcher needs.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) search.Result
}

// TextGenerator is the slice of the provider chain the researcher needs.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (provider.Result, error)
}

// Explanation is the research outcome. A zero Explanation means nothing was
// found anywhere, which is a legitimate result, not an error.
type Explanation struct {
	Text     string
	Source   string // one of the Source* constants, empty when Text is empty
	Provider string // generation provider, empty for web-raw
}

// Researcher runs the research ladder. The web searcher is optional; without
// it every explanation is llm-only.
type Researcher struct {
	web WebSearcher // may be nil
	gen TextGenerator
	log *slog.Logger
}

func New(web WebSearcher, gen TextGenerator, log *slog.Logger) *Researcher {
	if log == nil {
		log = slog.Default()
	}
	return &Researcher{web: web, gen: gen, log: log}
}

// Research explains one concept. Ladder: web search, grounded synthesis,
// pure synthesis, raw web text. Every rung is allowed to fail; only an empty
// Explanation falls out the bottom.
func (r *Researcher) Research(ctx context.Context, concept string) Explanation {
	webText := r.WebContext(ctx, "what is "+concept+" definition explanation")

	if webText != "" {
		prompt := "Concept: " + concept + "\n\nWeb context:\n" + webText
		res, err := r.gen.Generate(ctx, groundedSystem, prompt)
		if err == nil && strings.TrimSpace(res.Text) != "" {
			return Explanation{Text: strings.TrimSpace(res.Text), Source: SourceWebLLM, Provider: res.Provider}
		}
		if err != nil {
			r.log.Warn("grounded synthesis failed, keeping raw web text", "concept", concept, "error", err)
		}
		return Explanation{Text: webText, Source: SourceWebRaw}
	}

	res, err := r.gen.Generate(ctx, pureSystem, "Explain the concept: "+concept)
	if err != nil {
		r.log.Warn("pure synthesis failed", "concept", concept, "error", err)
		return Explanation{}
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return Explanation{}
	}
	return Explanation{Text: text, Source: SourceLLMOnly, Provider: res.Provider}
}

// WebContext returns raw snippet text for a query, or "" when the web has
// nothing. Rethink and recovery use it directly.
func (r *Researcher) WebContext(ctx context.Context, query string) string {
	if r.web == nil {
		return ""
	}
	return r.web.Search(ctx, query, maxSearchResults).Text
}
