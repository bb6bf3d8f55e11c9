// Package rethink re-derives an answer after negative feedback. The flow is
// user-facing: it streams staged progress lines, degrades to partial output
// when providers are down, and never returns an error. It also never writes
// to the knowledge store; persisting a correction is a separate, deliberate
// step so an unreviewed correction cannot overwrite verified knowledge.
package rethink

import (
	"context"
	"log/slog"
	"strings"

	"seedling/internal/provider"
)

const researchSystem = `You are researching a question that was previously
answered incorrectly. Gather the key facts needed to answer it correctly.
Write dense factual notes, not a polished answer.`

const correctSystem = `A previous answer to the user's question was wrong.
Using the fresh research notes, write a corrected answer. Briefly acknowledge
the mistake, then give the correct explanation. Do not repeat the wrong
answer's claims.`

// TextGenerator produces text from a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (provider.Result, error)
}

// WebResearcher fetches raw web context for a free-form query.
type WebResearcher interface {
	WebContext(ctx context.Context, query string) string
}

// EmitFunc receives user-visible progress lines as the rethink advances.
type EmitFunc func(stage string)

// Engine re-researches and re-synthesizes answers. Quality and web are
// optional; the fast generator is required.
type Engine struct {
	quality TextGenerator
	fast    TextGenerator
	web     WebResearcher
	log     *slog.Logger
}

func NewEngine(quality, fast TextGenerator, web WebResearcher, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{quality: quality, fast: fast, web: web, log: log}
}

// Rethink produces a corrected answer for a prompt whose previous answer was
// wrong. Every stage degrades rather than fails: with no research the
// synthesis runs from the prompt alone, and with no working generator the
// gathered research is returned raw. The result is empty only when nothing
// at all could be produced.
func (e *Engine) Rethink(ctx context.Context, prompt, wrongAnswer string, emit EmitFunc) string {
	if emit == nil {
		emit = func(string) {}
	}

	emit("Taking another look at that question...")
	notes := e.research(ctx, prompt)
	if notes != "" {
		emit("Found fresh context, composing a corrected answer...")
	} else {
		emit("No fresh context available, reasoning from scratch...")
	}

	corrected := e.synthesize(ctx, prompt, wrongAnswer, notes)
	if corrected != "" {
		return corrected
	}
	if notes != "" {
		e.log.Warn("correction synthesis failed, returning raw research", "prompt", prompt)
		return "I could not compose a full corrected answer, but here is what I found:\n\n" + notes
	}
	e.log.Warn("rethink produced nothing", "prompt", prompt)
	return ""
}

// research gathers background for the prompt: quality provider first, then
// raw web context.
func (e *Engine) research(ctx context.Context, prompt string) string {
	if e.quality != nil {
		res, err := e.quality.Generate(ctx, researchSystem, prompt)
		if err == nil && strings.TrimSpace(res.Text) != "" {
			return strings.TrimSpace(res.Text)
		}
		if err != nil {
			e.log.Warn("quality research failed, trying web", "error", err)
		}
	}
	if e.web != nil {
		return strings.TrimSpace(e.web.WebContext(ctx, prompt))
	}
	return ""
}

func (e *Engine) synthesize(ctx context.Context, prompt, wrongAnswer, notes string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(prompt)
	b.WriteString("\n\nPrevious wrong answer: ")
	b.WriteString(wrongAnswer)
	if notes != "" {
		b.WriteString("\n\nResearch notes:\n")
		b.WriteString(notes)
	}
	user := b.String()

	for _, gen := range []TextGenerator{e.quality, e.fast} {
		if gen == nil {
			continue
		}
		res, err := gen.Generate(ctx, correctSystem, user)
		if err != nil {
			e.log.Warn("correction synthesis attempt failed", "error", err)
			continue
		}
		if text := strings.TrimSpace(res.Text); text != "" {
			return text
		}
	}
	return ""
}
