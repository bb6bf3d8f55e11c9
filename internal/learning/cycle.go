// Package learning runs the cycles that move concepts from pending to known:
// quick (small, rate-limited), deep (exhaustive, plus deepening of what is
// already known), and batch (self-directed candidate generation under a
// wall-clock budget).
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"seedling/internal/provider"
	"seedling/internal/research"
	"seedling/internal/storage"
)

// TextGenerator is the slice of the provider chain the cycles need.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (provider.Result, error)
}

// Researcher explains one concept.
type Researcher interface {
	Research(ctx context.Context, concept string) research.Explanation
}

// Store is the slice of the relational store the cycles read.
type Store interface {
	GetConcept(key string) (storage.Concept, error)
	ListByStatus(status string, limit int) ([]storage.Concept, error)
	ListDeepenCandidates(limit int) ([]storage.Concept, error)
	KnownKeys() (map[string]bool, error)
	MarkPending(key string) error
}

// Base promotes, deepens, and forgets concepts.
type Base interface {
	Promote(ctx context.Context, c storage.Concept) error
	Deepen(ctx context.Context, key, expanded string) error
	Forget(ctx context.Context, key string) error
}

// Validator checks whether a single-word candidate is a real word.
type Validator interface {
	Validate(ctx context.Context, word string) (bool, error)
}

// Cycle result statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusNoPending = "no_pending"
)

// ConceptError attributes a failure to one concept and one stage. A batch of
// concepts never shares a fate: each entry stands alone.
type ConceptError struct {
	Concept string `json:"concept"`
	Kind    string `json:"kind"` // "validation", "research", "promote", "relation", "deepen", "register"
	Message string `json:"message"`
}

// Result summarizes one cycle run.
type Result struct {
	Status   string         `json:"status"`
	Learned  int            `json:"learned"`
	Deepened int            `json:"deepened"`
	Removed  int            `json:"removed"`
	Errors   []ConceptError `json:"errors,omitempty"`
}

// Deps carries the cycle's collaborators. Quality, Relator, Validator, and
// Clock are optional; nil disables the capability (Clock defaults to the
// system clock).
type Deps struct {
	Store      Store
	Base       Base
	Researcher Researcher
	Fast       TextGenerator
	Quality    TextGenerator
	Relator    *Relator
	Validator  Validator
	Gate       *Gate
	Clock      Clock
	Log        *slog.Logger
}

// Options tunes batch sizes.
type Options struct {
	QuickBatch  int
	DeepenCount int
}

type Cycle struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func NewCycle(deps Deps, opts Options) *Cycle {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.QuickBatch <= 0 {
		opts.QuickBatch = 3
	}
	if opts.DeepenCount <= 0 {
		opts.DeepenCount = 5
	}
	return &Cycle{deps: deps, opts: opts, log: log}
}

// Quick learns a small batch of pending concepts. Runs are rate-limited by
// the gate; a denied run returns StatusSkipped without touching anything.
// The returned error covers infrastructure only; per-concept failures land
// in Result.Errors.
func (c *Cycle) Quick(ctx context.Context) (Result, error) {
	if !c.deps.Gate.Allow() {
		c.log.Debug("quick cycle skipped by rate gate")
		return Result{Status: StatusSkipped}, nil
	}

	pending, err := c.deps.Store.ListByStatus(storage.StatusPending, c.opts.QuickBatch)
	if err != nil {
		return Result{}, fmt.Errorf("listing pending concepts: %w", err)
	}
	if len(pending) == 0 {
		return Result{Status: StatusNoPending}, nil
	}

	res := Result{Status: StatusCompleted}
	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		c.runUnit(ctx, c.deps.Fast, p.Key, &res)
	}
	c.log.Info("quick cycle finished", "learned", res.Learned, "removed", res.Removed, "errors", len(res.Errors))
	return res, nil
}

// Deep drains the whole pending set with the quality generator, then deepens
// the known concepts that have gone longest without attention.
func (c *Cycle) Deep(ctx context.Context) (Result, error) {
	gen := c.deps.Quality
	if gen == nil {
		gen = c.deps.Fast
	}

	pending, err := c.deps.Store.ListByStatus(storage.StatusPending, 0)
	if err != nil {
		return Result{}, fmt.Errorf("listing pending concepts: %w", err)
	}

	res := Result{Status: StatusCompleted}
	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		c.runUnit(ctx, gen, p.Key, &res)
	}

	candidates, err := c.deps.Store.ListDeepenCandidates(c.opts.DeepenCount)
	if err != nil {
		return res, fmt.Errorf("listing deepen candidates: %w", err)
	}
	for _, cand := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		c.deepenOne(ctx, gen, cand, &res)
	}

	if len(pending) == 0 && len(candidates) == 0 {
		res.Status = StatusNoPending
	}
	c.log.Info("deep cycle finished", "learned", res.Learned, "deepened", res.Deepened, "errors", len(res.Errors))
	return res, nil
}

func (c *Cycle) runUnit(ctx context.Context, gen TextGenerator, key string, res *Result) {
	outcome, cerr := c.learnOne(ctx, gen, key)
	if cerr != nil {
		res.Errors = append(res.Errors, *cerr)
	}
	switch outcome {
	case outcomeLearned:
		res.Learned++
	case outcomeRemoved:
		res.Removed++
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeLearned
	outcomeRemoved
)

// learnOne drives one concept through validation, research, categorization,
// promotion, and relationship mapping. A failed concept stays pending for a
// later cycle; only a failed dictionary check removes it.
func (c *Cycle) learnOne(ctx context.Context, gen TextGenerator, key string) (outcome, *ConceptError) {
	if c.deps.Validator != nil && !strings.Contains(key, " ") {
		ok, err := c.deps.Validator.Validate(ctx, key)
		if err != nil {
			// Could not check; learn anyway rather than stall the queue.
			c.log.Warn("dictionary check unavailable", "concept", key, "error", err)
		} else if !ok {
			if err := c.deps.Base.Forget(ctx, key); err != nil {
				return outcomeFailed, &ConceptError{Concept: key, Kind: "validation", Message: fmt.Sprintf("removing invalid word: %v", err)}
			}
			return outcomeRemoved, &ConceptError{Concept: key, Kind: "validation", Message: "not a dictionary word, removed from pending"}
		}
	}

	exp := c.deps.Researcher.Research(ctx, key)
	if exp.Text == "" {
		return outcomeFailed, &ConceptError{Concept: key, Kind: "research", Message: "no explanation from web or providers"}
	}

	category := Categorize(ctx, gen, key, exp.Text)

	if err := c.deps.Base.Promote(ctx, storage.Concept{
		Key:        key,
		Definition: exp.Text,
		Category:   category,
		Source:     exp.Source,
		Provider:   exp.Provider,
	}); err != nil {
		return outcomeFailed, &ConceptError{Concept: key, Kind: "promote", Message: err.Error()}
	}

	if c.deps.Relator != nil {
		if err := c.deps.Relator.Map(ctx, key, exp.Text); err != nil {
			// Mapping is best-effort; the concept is already learned.
			return outcomeLearned, &ConceptError{Concept: key, Kind: "relation", Message: err.Error()}
		}
	}
	return outcomeLearned, nil
}

const deepenSystem = `You expand an existing definition with one new angle:
history, a worked example, a common misconception, or a connection to a
neighboring field. Write 2-4 sentences. Do not repeat the definition.`

func (c *Cycle) deepenOne(ctx context.Context, gen TextGenerator, cand storage.Concept, res *Result) {
	prompt := "Concept: " + cand.Key + "\nCurrent definition: " + cand.Definition
	if cand.ExpandedDefinition != "" {
		prompt += "\nAlready covered:\n" + cand.ExpandedDefinition
	}
	out, err := gen.Generate(ctx, deepenSystem, prompt)
	if err != nil || strings.TrimSpace(out.Text) == "" {
		msg := "empty expansion"
		if err != nil {
			msg = err.Error()
		}
		res.Errors = append(res.Errors, ConceptError{Concept: cand.Key, Kind: "deepen", Message: msg})
		return
	}
	if err := c.deps.Base.Deepen(ctx, cand.Key, strings.TrimSpace(out.Text)); err != nil {
		res.Errors = append(res.Errors, ConceptError{Concept: cand.Key, Kind: "deepen", Message: err.Error()})
		return
	}
	res.Deepened++
}

// Refine deepens one named known concept. Unlike the deep cycle it reports
// the failure to the caller, so a scheduled refinement can stop after its
// first error instead of waking up to fail again.
func (c *Cycle) Refine(ctx context.Context, key string) error {
	cand, err := c.deps.Store.GetConcept(key)
	if err != nil {
		return fmt.Errorf("loading %q: %w", key, err)
	}
	if cand.Status != storage.StatusKnown {
		return fmt.Errorf("%q is not a known concept", key)
	}

	gen := c.deps.Quality
	if gen == nil {
		gen = c.deps.Fast
	}
	var res Result
	c.deepenOne(ctx, gen, cand, &res)
	if len(res.Errors) > 0 {
		return errors.New(res.Errors[0].Message)
	}
	return nil
}

// now is a test seam for the batch deadline.
func (c *Cycle) now() time.Time { return c.deps.Clock.Now() }
