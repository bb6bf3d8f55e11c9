// Package answer resolves a prompt against the vector-indexed knowledge
// base. A confident match returns the stored text verbatim; anything weaker
// triggers concept extraction and pending-set registration, which is the
// only bridge from query time to learning time.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"seedling/internal/knowledge"
	"seedling/internal/storage"
)

// FallbackMessage is returned whenever nothing in the base answers the
// prompt confidently.
const FallbackMessage = "I don't know enough about that yet. I've noted it down and will research it; ask me again in a little while."

// Index finds the concepts nearest to a query text.
type Index interface {
	Nearest(ctx context.Context, query string, k int) ([]knowledge.Match, error)
}

// Extractor pulls candidate concept keys out of free text.
type Extractor interface {
	Extract(ctx context.Context, text string) []string
}

// Registrar adds unknown concepts to the pending set.
type Registrar interface {
	RegisterUnknown(keys []string) []string
}

// ReviewLog records prompts that could not be answered.
type ReviewLog interface {
	AppendReview(e storage.ReviewEntry) error
}

// Response is one answered prompt. Text is stored knowledge verbatim when
// Confident; paraphrasing a verified record would invite hallucination
// drift, so the synthesizer never rewrites it.
type Response struct {
	Text       string   `json:"text"`
	Confident  bool     `json:"confident"`
	MatchKey   string   `json:"match_key,omitempty"`
	Distance   float64  `json:"distance,omitempty"`
	Registered []string `json:"registered,omitempty"`
}

type Synthesizer struct {
	index     Index
	extractor Extractor
	registrar Registrar
	reviews   ReviewLog
	threshold float64
	log       *slog.Logger
}

// NewSynthesizer wires the answer path. threshold is the exclusive distance
// boundary: matches strictly below it are confident.
func NewSynthesizer(index Index, extractor Extractor, registrar Registrar, reviews ReviewLog, threshold float64, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Synthesizer{
		index:     index,
		extractor: extractor,
		registrar: registrar,
		reviews:   reviews,
		threshold: threshold,
		log:       log,
	}
}

// Answer resolves prompt against the knowledge base. The error covers index
// infrastructure only; an unknown prompt is a normal Response carrying the
// fallback message.
func (s *Synthesizer) Answer(ctx context.Context, prompt string) (Response, error) {
	matches, err := s.index.Nearest(ctx, prompt, 1)
	if err != nil {
		return Response{}, fmt.Errorf("querying index: %w", err)
	}

	if len(matches) > 0 && matches[0].Distance < s.threshold {
		m := matches[0]
		s.log.Debug("confident match", "prompt", prompt, "concept", m.Key, "distance", m.Distance)
		return Response{Text: m.Text, Confident: true, MatchKey: m.Key, Distance: m.Distance}, nil
	}

	resp := Response{Text: FallbackMessage}
	if len(matches) > 0 {
		resp.MatchKey = matches[0].Key
		resp.Distance = matches[0].Distance
	}
	resp.Registered = s.noteUnknown(ctx, prompt)
	return resp, nil
}

// noteUnknown extracts candidate concepts from the prompt, registers them as
// pending, and logs the prompt for review. Both steps are best-effort: a
// failure here must not break the user-facing reply.
func (s *Synthesizer) noteUnknown(ctx context.Context, prompt string) []string {
	candidates := s.extractor.Extract(ctx, prompt)
	if len(candidates) == 0 {
		return nil
	}

	registered := s.registrar.RegisterUnknown(candidates)

	candidatesJSON, _ := json.Marshal(candidates)
	entry := storage.ReviewEntry{
		ID:             uuid.NewString(),
		Prompt:         prompt,
		CandidatesJSON: string(candidatesJSON),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.reviews.AppendReview(entry); err != nil {
		s.log.Warn("review log append failed", "error", err)
	}
	return registered
}
