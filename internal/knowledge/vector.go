// Package knowledge owns the learned-concept surface: the vector index over
// concept definitions and the Base type that keeps the relational store and
// the index in step.
package knowledge

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Match is a nearest-neighbor hit. Distance is cosine distance: 0 is an
// exact match, lower is better.
type Match struct {
	Key      string
	Text     string
	Distance float64
}

// VectorIndex is the similarity-search capability over concept texts.
type VectorIndex interface {
	Upsert(ctx context.Context, key, text string) error
	Nearest(ctx context.Context, text string, topK int) ([]Match, error)
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
}

// TextEmbedder turns text into a vector. The local provider implements it.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Compile-time check that SQLiteIndex implements VectorIndex.
var _ VectorIndex = (*SQLiteIndex)(nil)

// SQLiteIndex provides brute-force cosine search over the concept_vectors
// table. Fine up to tens of thousands of concepts; revisit if the knowledge
// base grows past that.
type SQLiteIndex struct {
	db    *sql.DB
	embed TextEmbedder
}

// NewSQLiteIndex wraps an existing *sql.DB for vector operations.
// The concept_vectors table must already exist (created via migrations).
func NewSQLiteIndex(db *sql.DB, embed TextEmbedder) *SQLiteIndex {
	return &SQLiteIndex{db: db, embed: embed}
}

// Upsert embeds text and stores it under the concept key, replacing any
// previous vector for that key.
func (s *SQLiteIndex) Upsert(ctx context.Context, key, text string) error {
	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO concept_vectors (id, text, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			dims = excluded.dims`,
		key, text, encodeFloat32s(vec), len(vec), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting vector for %q: %w", key, err)
	}
	return nil
}

// keyDist holds only the key and distance during the scan phase of Nearest.
// Full texts are fetched only for top-K winners.
type keyDist struct {
	Key      string
	Distance float64
}

// Nearest embeds the query and scans all vectors, returning the topK closest
// matches ordered by ascending distance.
func (s *SQLiteIndex) Nearest(ctx context.Context, text string, topK int) ([]Match, error) {
	query, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM concept_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &keyDistHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", key, err)
		}

		dist := 1 - cosine(query, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, keyDist{Key: key, Distance: dist})
		} else if dist < (*h)[0].Distance {
			(*h)[0] = keyDist{Key: key, Distance: dist}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Pop yields worst-first; fill the result back to front.
	matches := make([]Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		item := heap.Pop(h).(keyDist)
		matches[i] = Match{Key: item.Key, Distance: item.Distance}
	}

	for i := range matches {
		var text string
		if err := s.db.QueryRowContext(ctx, `SELECT text FROM concept_vectors WHERE id = ?`, matches[i].Key).Scan(&text); err != nil {
			return nil, fmt.Errorf("fetching text for %s: %w", matches[i].Key, err)
		}
		matches[i].Text = text
	}
	return matches, nil
}

// Delete removes the vector for a concept key. Missing keys are not an error:
// a pending concept never had a vector.
func (s *SQLiteIndex) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM concept_vectors WHERE id = ?`, key)
	return err
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM concept_vectors`).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * bNorm). aNorm is precomputed.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return dot / (aNorm * bNorm)
}

// keyDistHeap is a max-heap of keyDist ordered by Distance, so the worst
// candidate sits at the root during the scan phase of Nearest.
type keyDistHeap []keyDist

func (h keyDistHeap) Len() int           { return len(h) }
func (h keyDistHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h keyDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *keyDistHeap) Push(x any)        { *h = append(*h, x.(keyDist)) }
func (h *keyDistHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
