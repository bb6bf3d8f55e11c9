// Package graph mirrors concept relationships into an optional graph
// database. The relational store stays authoritative; the graph is a
// secondary view used for relationship queries and reconciliation.
package graph

import (
	"context"
	"time"
)

// Node statuses tracked on the graph side.
const (
	NodeStatusPending = "pending"
	NodeStatusLearned = "learned"
	NodeStatusFinal   = "final"
)

// Node is a concept as the graph sees it.
type Node struct {
	Key       string
	Status    string
	Related   []string
	Subtopics []string
	UpdatedAt time.Time
}

// Store is the graph capability the pipeline consumes. Implementations must
// tolerate being absent: a nil *Neo4j satisfies every method as a no-op so
// callers never branch on configuration.
type Store interface {
	WriteRelations(ctx context.Context, key string, related, subtopics []string) error
	ReadStatus(ctx context.Context, key string) (string, error)
	WriteStatus(ctx context.Context, key, status string) error
	FetchNode(ctx context.Context, key string) (Node, bool, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]string, error)
}
