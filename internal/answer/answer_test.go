package answer

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"seedling/internal/extract"
	"seedling/internal/knowledge"
	"seedling/internal/storage"
)

type fakeIndex struct {
	matches []knowledge.Match
	err     error
}

func (i *fakeIndex) Nearest(context.Context, string, int) ([]knowledge.Match, error) {
	return i.matches, i.err
}

type fakeExtractor struct{ concepts []string }

func (e *fakeExtractor) Extract(context.Context, string) []string { return e.concepts }

type fakeRegistrar struct{ got []string }

func (r *fakeRegistrar) RegisterUnknown(keys []string) []string {
	r.got = keys
	return keys
}

type fakeReviews struct{ entries []storage.ReviewEntry }

func (r *fakeReviews) AppendReview(e storage.ReviewEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newSynth(index Index) (*Synthesizer, *fakeRegistrar, *fakeReviews) {
	reg := &fakeRegistrar{}
	rev := &fakeReviews{}
	s := NewSynthesizer(index, &fakeExtractor{concepts: []string{"osmosis"}}, reg, rev, 0.6, nil)
	return s, reg, rev
}

func TestAnswer_ConfidentMatchIsVerbatim(t *testing.T) {
	s, reg, _ := newSynth(&fakeIndex{matches: []knowledge.Match{
		{Key: "osmosis", Text: "osmosis: movement of water across a membrane", Distance: 0.59},
	}})

	resp, err := s.Answer(context.Background(), "how does osmosis work")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !resp.Confident {
		t.Fatal("distance 0.59 should be a confident match")
	}
	if resp.Text != "osmosis: movement of water across a membrane" {
		t.Fatalf("text = %q, want the stored record verbatim", resp.Text)
	}
	if reg.got != nil {
		t.Fatal("confident match must not register unknowns")
	}
}

func TestAnswer_ThresholdIsExclusive(t *testing.T) {
	s, reg, rev := newSynth(&fakeIndex{matches: []knowledge.Match{
		{Key: "osmosis", Text: "osmosis: ...", Distance: 0.60},
	}})

	resp, err := s.Answer(context.Background(), "how does osmosis work")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Confident {
		t.Fatal("distance exactly at the threshold must be a weak match")
	}
	if resp.Text != FallbackMessage {
		t.Fatalf("text = %q, want fallback message", resp.Text)
	}
	if len(reg.got) == 0 {
		t.Fatal("weak match must register extracted concepts as pending")
	}
	if len(rev.entries) != 1 {
		t.Fatalf("review entries = %d, want 1", len(rev.entries))
	}
	e := rev.entries[0]
	if e.ID == "" || e.Prompt != "how does osmosis work" {
		t.Fatalf("review entry = %+v", e)
	}
	if !strings.Contains(e.CandidatesJSON, "osmosis") {
		t.Fatalf("candidates = %s", e.CandidatesJSON)
	}
}

func TestAnswer_EmptyIndex(t *testing.T) {
	s, reg, _ := newSynth(&fakeIndex{})

	resp, err := s.Answer(context.Background(), "what is entropy")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Confident || resp.Text != FallbackMessage {
		t.Fatalf("resp = %+v, want weak fallback", resp)
	}
	if len(reg.got) == 0 {
		t.Fatal("empty index must still register unknowns")
	}
}

func TestAnswer_IndexError(t *testing.T) {
	s, _, _ := newSynth(&fakeIndex{err: errors.New("embedder down")})
	if _, err := s.Answer(context.Background(), "q"); err == nil {
		t.Fatal("index failure must surface as an error")
	}
}

// topicEmbedder maps texts mentioning the same topic onto the same unit
// vector, so stored knowledge and prompts about it land at distance zero.
type topicEmbedder struct{ topics []string }

func (e *topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.topics)+1)
	text = strings.ToLower(text)
	hit := false
	for i, topic := range e.topics {
		if strings.Contains(text, topic) {
			vec[i] = 1
			hit = true
		}
	}
	if !hit {
		// Spread unmatched texts out so they do not cluster at one point.
		h := binary.LittleEndian.Uint32([]byte(text + "....")[:4])
		vec[len(e.topics)] = float32(math.Mod(float64(h), 97) + 1)
	}
	return vec, nil
}

type listSource struct{ concepts []string }

func (s *listSource) ExtractConcepts(context.Context, string) ([]string, error) {
	return s.concepts, nil
}

// The full loop: an unknown prompt falls back and registers a pending
// concept; once that concept is promoted, the same prompt answers
// confidently from the stored definition.
func TestAnswer_LearnThenAnswer(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index := knowledge.NewSQLiteIndex(store.DB(), &topicEmbedder{topics: []string{"supervised learning"}})
	base := knowledge.NewBase(store, index, nil)
	extractor := extract.New(&listSource{concepts: []string{"supervised learning"}}, nil)
	s := NewSynthesizer(index, extractor, base, store, 0.6, nil)
	ctx := context.Background()

	resp, err := s.Answer(ctx, "Explain supervised learning")
	if err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	if resp.Confident {
		t.Fatal("empty base answered confidently")
	}
	if len(resp.Registered) != 1 || resp.Registered[0] != "supervised learning" {
		t.Fatalf("registered = %v, want [supervised learning]", resp.Registered)
	}
	pending, err := store.ListByStatus(storage.StatusPending, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v (err %v), want one concept", pending, err)
	}

	if err := base.Promote(ctx, storage.Concept{
		Key:        "supervised learning",
		Definition: "training a model on labeled examples",
	}); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	resp, err = s.Answer(ctx, "Explain supervised learning")
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}
	if !resp.Confident {
		t.Fatalf("promoted concept did not produce a confident match: %+v", resp)
	}
	if !strings.Contains(resp.Text, "training a model on labeled examples") {
		t.Fatalf("text = %q, want the stored definition", resp.Text)
	}
}
