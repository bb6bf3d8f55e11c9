package knowledge

import (
	"context"
	"math"
	"strings"
	"testing"

	"seedling/internal/storage"
)

// hashEmbedder produces deterministic 8-dim vectors from text so distance
// relationships are stable across runs.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range strings.ToLower(text) {
		vec[i%8] += float32(r%13) + 1
	}
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func openTestBase(t *testing.T) (*Base, *storage.Store, *SQLiteIndex) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	idx := NewSQLiteIndex(s.DB(), hashEmbedder{})
	return NewBase(s, idx, nil), s, idx
}

func TestIndex_NearestOrdering(t *testing.T) {
	_, _, idx := openTestBase(t)
	ctx := context.Background()

	texts := map[string]string{
		"osmosis":   "osmosis: movement of water across a membrane",
		"entropy":   "entropy: a measure of disorder in a system",
		"monarchy":  "monarchy: rule by a single sovereign",
		"diffusion": "diffusion: net movement from high to low concentration",
	}
	for key, text := range texts {
		if err := idx.Upsert(ctx, key, text); err != nil {
			t.Fatalf("Upsert(%s): %v", key, err)
		}
	}

	matches, err := idx.Nearest(ctx, texts["osmosis"], 3)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].Key != "osmosis" {
		t.Errorf("closest match = %q, want osmosis", matches[0].Key)
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("self-distance = %v, want ~0", matches[0].Distance)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches not in ascending distance order: %v", matches)
		}
	}
	if matches[0].Text != texts["osmosis"] {
		t.Errorf("match text = %q", matches[0].Text)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	_, _, idx := openTestBase(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "k", "old text"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "k", "new text"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	matches, err := idx.Nearest(ctx, "new text", 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "new text" {
		t.Errorf("matches = %v, want the replaced text", matches)
	}
}

func TestIndex_EmptyIndex(t *testing.T) {
	_, _, idx := openTestBase(t)

	matches, err := idx.Nearest(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %v, want nil", matches)
	}
}

func TestBase_PromoteIndexesConcept(t *testing.T) {
	b, s, idx := openTestBase(t)
	ctx := context.Background()

	if err := s.MarkPending("osmosis"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	c := storage.Concept{Key: "osmosis", Definition: "movement of water across a membrane"}
	if err := b.Promote(ctx, c); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	// Idempotent: repeat must succeed and not duplicate vectors.
	if err := b.Promote(ctx, c); err != nil {
		t.Fatalf("repeat Promote: %v", err)
	}

	got, err := s.GetConcept("osmosis")
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if got.Status != storage.StatusKnown {
		t.Errorf("status = %q, want known", got.Status)
	}
	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("vector count = %d, want 1", n)
	}

	matches, err := idx.Nearest(ctx, "osmosis: movement of water across a membrane", 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 1 || !strings.HasPrefix(matches[0].Text, "osmosis: ") {
		t.Errorf("matches = %v", matches)
	}
}

func TestBase_DeepenRefreshesVector(t *testing.T) {
	b, _, idx := openTestBase(t)
	ctx := context.Background()

	if err := b.Promote(ctx, storage.Concept{Key: "ion", Definition: "a charged atom"}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if err := b.Deepen(ctx, "ion", "ions form when atoms gain or lose electrons"); err != nil {
		t.Fatalf("Deepen: %v", err)
	}

	matches, err := idx.Nearest(ctx, "ion", 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 1 || !strings.Contains(matches[0].Text, "gain or lose electrons") {
		t.Errorf("vector text not refreshed: %v", matches)
	}
}

func TestBase_RegisterUnknownAndForget(t *testing.T) {
	b, s, _ := openTestBase(t)
	ctx := context.Background()

	registered := b.RegisterUnknown([]string{"flux", "torque"})
	if len(registered) != 2 {
		t.Fatalf("registered = %v", registered)
	}
	pending, _, err := s.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if pending != 2 {
		t.Errorf("pending = %d, want 2", pending)
	}

	if err := b.Forget(ctx, "flux"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, err := s.GetConcept("flux"); err != storage.ErrNotFound {
		t.Errorf("GetConcept after Forget: err = %v, want ErrNotFound", err)
	}
	// Forgetting something never stored is not an error.
	if err := b.Forget(ctx, "never-existed"); err != nil {
		t.Errorf("Forget on missing concept: %v", err)
	}
}

func TestBase_Stats(t *testing.T) {
	b, _, _ := openTestBase(t)
	ctx := context.Background()

	b.RegisterUnknown([]string{"a1", "b2"})
	if err := b.Promote(ctx, storage.Concept{Key: "c3", Definition: "d"}); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 2 || stats.Known != 1 || stats.Vectors != 1 {
		t.Errorf("stats = %+v, want 2/1/1", stats)
	}
}
