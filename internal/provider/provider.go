// Package provider implements the text-generation capability: one interface,
// three HTTP clients (local Ollama, Gemini, Groq), and an ordered fallback
// chain that tags every result with the provider that produced it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Generator produces text from a system and a user prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, system, user string) (string, error)
}

// Result carries generated text tagged with the provider that produced it.
type Result struct {
	Text     string
	Provider string
}

// ErrAllUnavailable is returned by Chain.Generate when every provider in the
// chain failed or returned an empty response.
var ErrAllUnavailable = errors.New("all providers unavailable")

// Chain tries generators in the order they were given and returns the first
// non-empty result. A provider error or empty response is not fatal; it is
// logged and the next provider is consulted.
type Chain struct {
	gens []Generator
	log  *slog.Logger
}

func NewChain(log *slog.Logger, gens ...Generator) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{gens: gens, log: log}
}

// Names returns the provider names in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.gens))
	for i, g := range c.gens {
		names[i] = g.Name()
	}
	return names
}

func (c *Chain) Generate(ctx context.Context, system, user string) (Result, error) {
	errs := []error{ErrAllUnavailable}
	for _, g := range c.gens {
		out, err := g.Generate(ctx, system, user)
		if err != nil {
			// Cancellation is the caller's signal, not a provider fault.
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			c.log.Warn("provider failed, trying next", "provider", g.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			continue
		}
		if strings.TrimSpace(out) == "" {
			c.log.Warn("provider returned empty response, trying next", "provider", g.Name())
			errs = append(errs, fmt.Errorf("%s: empty response", g.Name()))
			continue
		}
		return Result{Text: out, Provider: g.Name()}, nil
	}
	return Result{}, errors.Join(errs...)
}
