package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"seedling/internal/storage"
)

// ConceptStore is the slice of the relational store the Base needs.
type ConceptStore interface {
	MarkPending(key string) error
	PromoteConcept(c storage.Concept) error
	GetConcept(key string) (storage.Concept, error)
	DeleteConcept(key string) error
	DeepenConcept(key, expanded string, at time.Time) error
	ListByStatus(status string, limit int) ([]storage.Concept, error)
	CountByStatus() (pending, known int, err error)
}

// Base keeps the concept table and the vector index in step. All promotion
// and removal flows go through it so the two never drift.
type Base struct {
	store ConceptStore
	index VectorIndex
	log   *slog.Logger
}

func NewBase(store ConceptStore, index VectorIndex, log *slog.Logger) *Base {
	if log == nil {
		log = slog.Default()
	}
	return &Base{store: store, index: index, log: log}
}

// Promote writes the concept as known and upserts its vector. The store
// write lands first; if the vector upsert then fails the concept stays
// known and the error is surfaced so the caller can retry. Retrying is safe:
// both halves are idempotent.
func (b *Base) Promote(ctx context.Context, c storage.Concept) error {
	if c.Key == "" {
		return fmt.Errorf("promoting concept: empty key")
	}
	if err := b.store.PromoteConcept(c); err != nil {
		return fmt.Errorf("promoting %q: %w", c.Key, err)
	}
	if err := b.index.Upsert(ctx, c.Key, answerText(c)); err != nil {
		return fmt.Errorf("indexing %q: %w", c.Key, err)
	}
	return nil
}

// Deepen appends expanded material to a known concept and refreshes its
// vector so answers reflect the richer text.
func (b *Base) Deepen(ctx context.Context, key, expanded string) error {
	if err := b.store.DeepenConcept(key, expanded, time.Now().UTC()); err != nil {
		return fmt.Errorf("deepening %q: %w", key, err)
	}
	c, err := b.store.GetConcept(key)
	if err != nil {
		return fmt.Errorf("reloading %q: %w", key, err)
	}
	if err := b.index.Upsert(ctx, key, answerText(c)); err != nil {
		return fmt.Errorf("reindexing %q: %w", key, err)
	}
	return nil
}

// RegisterUnknown marks candidate keys as pending. Keys already known stay
// known; per-key failures are logged and the rest proceed.
func (b *Base) RegisterUnknown(keys []string) []string {
	var registered []string
	for _, key := range keys {
		if err := b.store.MarkPending(key); err != nil {
			b.log.Warn("could not register pending concept", "concept", key, "error", err)
			continue
		}
		registered = append(registered, key)
	}
	return registered
}

// Forget removes a concept from the store and the index. Used when a pending
// candidate fails validation or a human rejects a concept.
func (b *Base) Forget(ctx context.Context, key string) error {
	if err := b.store.DeleteConcept(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	if err := b.index.Delete(ctx, key); err != nil {
		return fmt.Errorf("unindexing %q: %w", key, err)
	}
	return nil
}

// Stats summarizes the knowledge base for the health surface.
type Stats struct {
	Pending int `json:"pending"`
	Known   int `json:"known"`
	Vectors int `json:"vectors"`
}

func (b *Base) Stats(ctx context.Context) (Stats, error) {
	pending, known, err := b.store.CountByStatus()
	if err != nil {
		return Stats{}, fmt.Errorf("counting concepts: %w", err)
	}
	vectors, err := b.index.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting vectors: %w", err)
	}
	return Stats{Pending: pending, Known: known, Vectors: vectors}, nil
}

// answerText is the canonical text stored in the index and returned verbatim
// by confident answers.
func answerText(c storage.Concept) string {
	text := c.Key + ": " + c.Definition
	if c.ExpandedDefinition != "" {
		text += "\n\n" + c.ExpandedDefinition
	}
	return text
}
