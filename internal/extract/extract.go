// Package extract turns free text into candidate concept keys. A pluggable
// source (normally LLM-backed) does the linguistic work; a whitespace
// tokenizer covers for it when it fails or is absent.
package extract

import (
	"context"
	"log/slog"
	"strings"
)

// ConceptSource is the external linguistic backend.
type ConceptSource interface {
	ExtractConcepts(ctx context.Context, text string) ([]string, error)
}

// Extractor normalizes and dedups what the source returns. It never fails:
// a broken source degrades to the fallback tokenizer.
type Extractor struct {
	source ConceptSource // may be nil
	log    *slog.Logger
}

func New(source ConceptSource, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{source: source, log: log}
}

// Extract returns normalized, deduplicated concept candidates in first-seen
// order. Single tokens already covered by a retained multi-word phrase are
// dropped.
func (e *Extractor) Extract(ctx context.Context, text string) []string {
	var candidates []string
	if e.source != nil {
		got, err := e.source.ExtractConcepts(ctx, text)
		if err != nil {
			e.log.Warn("concept source failed, falling back to tokenizer", "error", err)
		} else {
			candidates = got
		}
	}
	if len(candidates) == 0 {
		candidates = tokenize(text)
	}
	return dedupe(candidates)
}

// tokenize is the degraded path: lowercase words with punctuation stripped,
// stop-words and short words removed.
func tokenize(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		w := normalize(f)
		if len(w) < 4 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;:!?\"'()[]{}`")
	return strings.Join(strings.Fields(s), " ")
}

func dedupe(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	var kept []string
	for _, c := range candidates {
		n := normalize(c)
		if len(n) < 3 || stopWords[n] || seen[n] {
			continue
		}
		seen[n] = true
		kept = append(kept, n)
	}

	// Words already covered by a retained phrase don't stand alone.
	phraseWords := make(map[string]bool)
	for _, k := range kept {
		if strings.Contains(k, " ") {
			for _, w := range strings.Fields(k) {
				phraseWords[w] = true
			}
		}
	}

	out := kept[:0]
	for _, k := range kept {
		if !strings.Contains(k, " ") && phraseWords[k] {
			continue
		}
		out = append(out, k)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "him": true, "his": true, "how": true, "its": true,
	"may": true, "new": true, "now": true, "old": true, "see": true,
	"two": true, "way": true, "who": true, "did": true, "get": true,
	"use": true, "what": true, "when": true, "where": true, "which": true,
	"with": true, "this": true, "that": true, "from": true, "they": true,
	"have": true, "been": true, "were": true, "does": true, "about": true,
	"into": true, "than": true, "them": true, "then": true, "there": true,
	"these": true, "those": true, "will": true, "would": true, "could": true,
	"should": true, "your": true, "mean": true, "means": true, "very": true,
	"some": true, "such": true, "only": true, "also": true, "just": true,
	"like": true, "more": true, "most": true, "other": true, "over": true,
	"tell": true, "please": true, "explain": true,
}
