package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const conceptColumns = `key, status, definition, expanded_definition, category,
	related_json, subtopics_json, domain, source, provider, bootstrapped,
	created_at, learned_at, last_deepened_at`

// MarkPending registers a concept key as pending. It is a no-op if the key
// already exists in either set, so a known concept is never downgraded.
func (s *Store) MarkPending(key string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO concepts (key, status, created_at) VALUES (?, 'pending', ?)
		ON CONFLICT(key) DO NOTHING`,
		key, now,
	)
	return err
}

// PromoteConcept moves a concept into the known set and fills in the learned
// fields. Promotion is idempotent: promoting an already known concept updates
// its definition but keeps the original learned_at, and a known concept never
// returns to pending.
func (s *Store) PromoteConcept(c Concept) error {
	now := time.Now().UTC()
	learnedAt := c.LearnedAt
	if learnedAt.IsZero() {
		learnedAt = now
	}
	related := c.RelatedJSON
	if related == "" {
		related = "[]"
	}
	subtopics := c.SubtopicsJSON
	if subtopics == "" {
		subtopics = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO concepts (key, status, definition, expanded_definition, category,
			related_json, subtopics_json, domain, source, provider, bootstrapped,
			created_at, learned_at)
		VALUES (?, 'known', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = 'known',
			definition = excluded.definition,
			expanded_definition = CASE WHEN excluded.expanded_definition != ''
				THEN excluded.expanded_definition ELSE concepts.expanded_definition END,
			category = excluded.category,
			related_json = excluded.related_json,
			subtopics_json = excluded.subtopics_json,
			domain = excluded.domain,
			source = excluded.source,
			provider = excluded.provider,
			bootstrapped = excluded.bootstrapped,
			learned_at = COALESCE(concepts.learned_at, excluded.learned_at)`,
		c.Key, c.Definition, c.ExpandedDefinition, c.Category,
		related, subtopics, c.Domain, c.Source, c.Provider, c.Bootstrapped,
		now.Format(time.RFC3339), learnedAt.Format(time.RFC3339),
	)
	return err
}

// DeepenConcept appends expanded material to a known concept and stamps
// last_deepened_at. Pending concepts cannot be deepened.
func (s *Store) DeepenConcept(key, expanded string, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE concepts SET
			expanded_definition = CASE WHEN expanded_definition = ''
				THEN ? ELSE expanded_definition || char(10) || char(10) || ? END,
			last_deepened_at = ?
		WHERE key = ? AND status = 'known'`,
		expanded, expanded, at.UTC().Format(time.RFC3339), key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRelations stores the related/subtopic lists for a concept.
func (s *Store) UpdateRelations(key, relatedJSON, subtopicsJSON string) error {
	res, err := s.db.Exec(`UPDATE concepts SET related_json = ?, subtopics_json = ? WHERE key = ?`,
		relatedJSON, subtopicsJSON, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConcept removes a concept from whichever set it is in. Used when a
// pending candidate fails dictionary validation or is rejected by a human.
func (s *Store) DeleteConcept(key string) error {
	res, err := s.db.Exec(`DELETE FROM concepts WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetConcept(key string) (Concept, error) {
	row := s.db.QueryRow(`SELECT `+conceptColumns+` FROM concepts WHERE key = ?`, key)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return Concept{}, ErrNotFound
	}
	return c, err
}

// ListByStatus returns concepts in the given set, oldest first. A limit <= 0
// means no limit.
func (s *Store) ListByStatus(status string, limit int) ([]Concept, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+conceptColumns+` FROM concepts
		WHERE status = ? ORDER BY created_at ASC, key ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConcepts(rows)
}

// ListDeepenCandidates returns known concepts ordered so that never-deepened
// and least-recently-deepened concepts come first.
func (s *Store) ListDeepenCandidates(limit int) ([]Concept, error) {
	rows, err := s.db.Query(`
		SELECT `+conceptColumns+` FROM concepts
		WHERE status = 'known'
		ORDER BY last_deepened_at IS NOT NULL, last_deepened_at ASC, learned_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConcepts(rows)
}

// KnownKeys returns every key in the known set.
func (s *Store) KnownKeys() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT key FROM concepts WHERE status = 'known'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}

// CountByStatus returns the size of the pending and known sets.
func (s *Store) CountByStatus() (pending, known int, err error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM concepts GROUP BY status`)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, err
		}
		switch status {
		case StatusPending:
			pending = n
		case StatusKnown:
			known = n
		}
	}
	return pending, known, rows.Err()
}

// --- Review log ---

// AppendReview records a prompt that could not be answered confidently.
// The review log is append-only; entries are never updated.
func (s *Store) AppendReview(e ReviewEntry) error {
	candidates := e.CandidatesJSON
	if candidates == "" {
		candidates = "[]"
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO review_log (id, prompt, candidates_json, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.Prompt, candidates, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListReview(limit int) ([]ReviewEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, prompt, candidates_json, created_at
		FROM review_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ReviewEntry
	for rows.Next() {
		var e ReviewEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Prompt, &e.CandidatesJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcept(row rowScanner) (Concept, error) {
	var c Concept
	var createdAt string
	var learnedAt, deepenedAt sql.NullString
	err := row.Scan(&c.Key, &c.Status, &c.Definition, &c.ExpandedDefinition, &c.Category,
		&c.RelatedJSON, &c.SubtopicsJSON, &c.Domain, &c.Source, &c.Provider, &c.Bootstrapped,
		&createdAt, &learnedAt, &deepenedAt)
	if err != nil {
		return Concept{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Concept{}, fmt.Errorf("parsing created_at for %q: %w", c.Key, err)
	}
	if c.LearnedAt, err = parseNullTime(learnedAt); err != nil {
		return Concept{}, fmt.Errorf("parsing learned_at for %q: %w", c.Key, err)
	}
	if c.LastDeepenedAt, err = parseNullTime(deepenedAt); err != nil {
		return Concept{}, fmt.Errorf("parsing last_deepened_at for %q: %w", c.Key, err)
	}
	return c, nil
}

func scanConcepts(rows *sql.Rows) ([]Concept, error) {
	var results []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
