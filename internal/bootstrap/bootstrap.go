// Package bootstrap seeds the knowledge base: a small embedded foundational
// vocabulary, plus glossary-style seed documents (PDF or plain text) whose
// "term: definition" lines become known concept records.
package bootstrap

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"seedling/internal/storage"
)

//go:embed vocabulary.json
var vocabularyJSON []byte

// glossaryMaxTermWords rejects lines whose left side is prose rather than a
// term ("In this chapter: we discuss...").
const glossaryMaxTermWords = 5

// Promoter writes seeded concepts as known records with vectors.
type Promoter interface {
	Promote(ctx context.Context, c storage.Concept) error
}

type vocabEntry struct {
	Key        string `json:"key"`
	Definition string `json:"definition"`
	Domain     string `json:"domain"`
}

// SeedVocabulary loads the embedded foundational vocabulary into the base.
// Seeding is idempotent; re-running refreshes the same records. Returns how
// many entries were written.
func SeedVocabulary(ctx context.Context, base Promoter, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	var entries []vocabEntry
	if err := json.Unmarshal(vocabularyJSON, &entries); err != nil {
		return 0, fmt.Errorf("parsing embedded vocabulary: %w", err)
	}

	seeded := 0
	for _, e := range entries {
		if err := base.Promote(ctx, seedConcept(e.Key, e.Definition, e.Domain)); err != nil {
			return seeded, fmt.Errorf("seeding %q: %w", e.Key, err)
		}
		seeded++
	}
	log.Info("vocabulary seeded", "concepts", seeded)
	return seeded, nil
}

// SeedGlossaryText parses glossary-style text and promotes each
// "term: definition" line as a known concept. Lines that do not look like
// glossary entries are skipped, not errors. source labels where the entries
// came from (e.g. a file name).
func SeedGlossaryText(ctx context.Context, base Promoter, text, source string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	seeded := 0
	for _, line := range strings.Split(text, "\n") {
		term, def, ok := parseGlossaryLine(line)
		if !ok {
			continue
		}
		c := seedConcept(term, def, "")
		c.Source = source
		if err := base.Promote(ctx, c); err != nil {
			return seeded, fmt.Errorf("seeding %q: %w", term, err)
		}
		seeded++
	}
	log.Info("glossary seeded", "source", source, "concepts", seeded)
	return seeded, nil
}

func seedConcept(key, definition, domain string) storage.Concept {
	return storage.Concept{
		Key:          strings.ToLower(strings.TrimSpace(key)),
		Definition:   strings.TrimSpace(definition),
		Domain:       domain,
		Source:       "bootstrap",
		Bootstrapped: true,
		LearnedAt:    time.Now().UTC(),
	}
}

// parseGlossaryLine accepts "term: definition" lines where the term is a
// short phrase and the definition has some substance.
func parseGlossaryLine(line string) (term, def string, ok bool) {
	line = strings.TrimSpace(line)
	term, def, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	term = strings.TrimSpace(term)
	def = strings.TrimSpace(def)
	if term == "" || len(def) < 10 {
		return "", "", false
	}
	if len(strings.Fields(term)) > glossaryMaxTermWords {
		return "", "", false
	}
	// URLs and timestamps also contain colons.
	if strings.ContainsAny(term, "/@0123456789") {
		return "", "", false
	}
	return term, def, true
}
