// Package search implements the web-research capability: a DuckDuckGo HTML
// scraper, a Google Programmable Search client, and an ordered chain that
// falls through until one backend returns enough snippet text.
package search

import (
	"context"
	"log/slog"
	"strings"
)

// Searcher returns concatenated snippet text for a query. An empty string
// with a nil error is a legitimate outcome (nothing useful found).
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) (string, error)
}

// Result is web context tagged with the backend that produced it.
type Result struct {
	Text    string
	Backend string
}

// Chain consults backends in order and returns the first result with at
// least minChars of text. Backend errors are logged, not surfaced: research
// is best-effort and an empty Result means the web had nothing to offer.
type Chain struct {
	searchers []Searcher
	minChars  int
	log       *slog.Logger
}

func NewChain(log *slog.Logger, minChars int, searchers ...Searcher) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{searchers: searchers, minChars: minChars, log: log}
}

func (c *Chain) Search(ctx context.Context, query string, maxResults int) Result {
	for _, s := range c.searchers {
		if ctx.Err() != nil {
			return Result{}
		}
		text, err := s.Search(ctx, query, maxResults)
		if err != nil {
			c.log.Warn("search backend failed, trying next", "backend", s.Name(), "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if len(text) < c.minChars {
			c.log.Debug("search result below threshold, trying next",
				"backend", s.Name(), "chars", len(text), "min", c.minChars)
			continue
		}
		return Result{Text: text, Backend: s.Name()}
	}
	return Result{}
}
