package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const connectTimeout = 10 * time.Second

// Neo4j implements Store against a Neo4j server. A nil *Neo4j is a valid
// no-op store, so wiring can pass the result of Connect through unguarded.
type Neo4j struct {
	driver neo4j.DriverWithContext
	log    *slog.Logger
}

// Connect dials Neo4j and verifies connectivity. An empty uri means the
// graph is not configured and yields (nil, nil).
func Connect(ctx context.Context, uri, user, password string, log *slog.Logger) (*Neo4j, error) {
	if uri == "" {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = connectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	g := &Neo4j{driver: driver, log: log}
	g.initSchema(ctx)
	return g, nil
}

func (g *Neo4j) Close(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}

// initSchema is best-effort; a failed constraint never blocks startup.
func (g *Neo4j) initSchema(ctx context.Context) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if res, err := session.Run(ctx,
		`CREATE CONSTRAINT concept_key_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.key IS UNIQUE`, nil); err != nil {
		g.log.Warn("neo4j schema init failed, continuing", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}
}

// WriteRelations merges the concept node and its RELATED_TO / HAS_SUBTOPIC
// edges. Neighbor nodes are created as pending placeholders when missing.
func (g *Neo4j) WriteRelations(ctx context.Context, key string, related, subtopics []string) error {
	if g == nil || g.driver == nil {
		return nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if res, err := tx.Run(ctx, `
MERGE (c:Concept {key: $key})
ON CREATE SET c.status = $learned
SET c.updated_at = $now
`, map[string]any{"key": key, "learned": NodeStatusLearned, "now": now}); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(related) > 0 {
			res, err := tx.Run(ctx, `
MATCH (c:Concept {key: $key})
UNWIND $related AS r
MERGE (o:Concept {key: r})
ON CREATE SET o.status = $pending
MERGE (c)-[e:RELATED_TO]->(o)
SET e.updated_at = $now
`, map[string]any{"key": key, "related": related, "pending": NodeStatusPending, "now": now})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(subtopics) > 0 {
			res, err := tx.Run(ctx, `
MATCH (c:Concept {key: $key})
UNWIND $subtopics AS s
MERGE (o:Concept {key: s})
ON CREATE SET o.status = $pending
MERGE (c)-[e:HAS_SUBTOPIC]->(o)
SET e.updated_at = $now
`, map[string]any{"key": key, "subtopics": subtopics, "pending": NodeStatusPending, "now": now})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("writing relations for %q: %w", key, err)
	}
	return nil
}

// ReadStatus returns the node's status, or "" when the node does not exist.
func (g *Neo4j) ReadStatus(ctx context.Context, key string) (string, error) {
	if g == nil || g.driver == nil {
		return "", nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (c:Concept {key: $key}) RETURN c.status AS status`, map[string]any{"key": key})
		if err != nil {
			return "", err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return "", nil // no node
		}
		status, _ := rec.Get("status")
		s, _ := status.(string)
		return s, nil
	})
	if err != nil {
		return "", fmt.Errorf("reading status of %q: %w", key, err)
	}
	s, _ := out.(string)
	return s, nil
}

func (g *Neo4j) WriteStatus(ctx context.Context, key, status string) error {
	if g == nil || g.driver == nil {
		return nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:Concept {key: $key})
SET c.status = $status, c.updated_at = $now
`, map[string]any{"key": key, "status": status, "now": time.Now().UTC().Format(time.RFC3339Nano)})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("writing status of %q: %w", key, err)
	}
	return nil
}

// FetchNode returns the node with its outgoing relationships. The second
// return reports existence.
func (g *Neo4j) FetchNode(ctx context.Context, key string) (Node, bool, error) {
	if g == nil || g.driver == nil {
		return Node{}, false, nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {key: $key})
OPTIONAL MATCH (c)-[:RELATED_TO]->(r:Concept)
OPTIONAL MATCH (c)-[:HAS_SUBTOPIC]->(s:Concept)
RETURN c.status AS status,
       collect(DISTINCT r.key) AS related,
       collect(DISTINCT s.key) AS subtopics
`, map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil // no node
		}
		node := Node{Key: key}
		if v, ok := rec.Get("status"); ok {
			node.Status, _ = v.(string)
		}
		if v, ok := rec.Get("related"); ok {
			node.Related = toStrings(v)
		}
		if v, ok := rec.Get("subtopics"); ok {
			node.Subtopics = toStrings(v)
		}
		return &node, nil
	})
	if err != nil {
		return Node{}, false, fmt.Errorf("fetching node %q: %w", key, err)
	}
	node, ok := out.(*Node)
	if !ok || node == nil {
		return Node{}, false, nil
	}
	return *node, true, nil
}

func (g *Neo4j) ListByStatus(ctx context.Context, status string, limit int) ([]string, error) {
	if g == nil || g.driver == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {status: $status})
RETURN c.key AS key ORDER BY c.key LIMIT $limit
`, map[string]any{"status": status, "limit": limit})
		if err != nil {
			return nil, err
		}
		var keys []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("key"); ok {
				if s, ok := v.(string); ok {
					keys = append(keys, s)
				}
			}
		}
		return keys, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q nodes: %w", status, err)
	}
	keys, _ := out.([]string)
	return keys, nil
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
