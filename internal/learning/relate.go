package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const relateSystem = `You map how a concept relates to others.
Return ONLY a JSON object: {"related": ["..."], "subtopics": ["..."]}.
Related concepts are peers; subtopics are narrower parts of this concept.
Keep each list to at most five lowercase entries.`

// RelationStore is the slice of storage the relator writes through.
type RelationStore interface {
	UpdateRelations(key, relatedJSON, subtopicsJSON string) error
}

// GraphWriter mirrors relations into the optional graph store.
type GraphWriter interface {
	WriteRelations(ctx context.Context, key string, related, subtopics []string) error
}

// Relator extracts related concepts and subtopics for a freshly learned
// concept. Mapping failures never undo a promotion; callers record them and
// move on.
type Relator struct {
	gen   TextGenerator
	store RelationStore
	graph GraphWriter // may be nil
	log   *slog.Logger
}

func NewRelator(gen TextGenerator, store RelationStore, graph GraphWriter, log *slog.Logger) *Relator {
	if log == nil {
		log = slog.Default()
	}
	return &Relator{gen: gen, store: store, graph: graph, log: log}
}

type relationsPayload struct {
	Related   []string `json:"related"`
	Subtopics []string `json:"subtopics"`
}

func (r *Relator) Map(ctx context.Context, key, definition string) error {
	res, err := r.gen.Generate(ctx, relateSystem, "Concept: "+key+"\nDefinition: "+definition)
	if err != nil {
		return fmt.Errorf("generating relations: %w", err)
	}

	var payload relationsPayload
	if err := json.Unmarshal([]byte(extractJSONObject(res.Text)), &payload); err != nil {
		return fmt.Errorf("parsing relations: %w", err)
	}
	payload.Related = cleanList(payload.Related, key)
	payload.Subtopics = cleanList(payload.Subtopics, key)

	relatedJSON, _ := json.Marshal(payload.Related)
	subtopicsJSON, _ := json.Marshal(payload.Subtopics)
	if err := r.store.UpdateRelations(key, string(relatedJSON), string(subtopicsJSON)); err != nil {
		return fmt.Errorf("storing relations: %w", err)
	}

	if r.graph != nil {
		if err := r.graph.WriteRelations(ctx, key, payload.Related, payload.Subtopics); err != nil {
			// The sqlite copy is authoritative; a graph miss is only noise.
			r.log.Warn("graph relation write failed", "concept", key, "error", err)
		}
	}
	return nil
}

func cleanList(items []string, self string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]bool{self: true}
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the first top-level JSON object in the text.
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
