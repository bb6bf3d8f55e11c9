package provider

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embed requests against the local server.
const embedConcurrency = 4

// Embedder wraps the local embed endpoint and adds bounded-parallel batch
// embedding for seeding and batch jobs.
type Embedder struct {
	local *Local
}

func NewEmbedder(local *Local) *Embedder {
	return &Embedder{local: local}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.local.Embed(ctx, text)
}

// EmbedBatch embeds texts with bounded concurrency, preserving order.
// One failed text fails the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.local.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
