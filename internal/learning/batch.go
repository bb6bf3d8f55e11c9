package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const proposeSystem = `You propose new concepts for a knowledge base to learn.
Return ONLY a comma-separated list of concept names, lowercase, no numbering,
no explanations. Prefer concrete, widely useful topics. Propose at most 40.`

// BatchOptions bounds a self-directed learning run.
type BatchOptions struct {
	// Budget is the wall-clock allowance; the run stops before starting a
	// unit that would exceed it.
	Budget time.Duration
	// PerRound caps how many proposed candidates one round may learn.
	PerRound int
}

// ProgressFunc receives percent-of-budget elapsed (0-100) and the errors
// accumulated so far after each learned unit.
type ProgressFunc func(pct int, errs []ConceptError)

// Batch runs self-directed learning: the generator proposes candidates the
// base does not know yet, and each is learned like any pending concept. The
// run ends when the budget expires, the generator runs dry, or ctx is
// canceled. Per-concept failures accumulate in Result.Errors; the returned
// error reflects only infrastructure or cancellation.
func (c *Cycle) Batch(ctx context.Context, opts BatchOptions, onProgress ProgressFunc) (Result, error) {
	if opts.PerRound <= 0 {
		opts.PerRound = 25
	}
	start := c.now()
	expired := func() bool { return c.now().Sub(start) >= opts.Budget }

	known, err := c.deps.Store.KnownKeys()
	if err != nil {
		return Result{}, fmt.Errorf("loading known keys: %w", err)
	}
	processed := make(map[string]bool)

	res := Result{Status: StatusCompleted}
	report := func() {
		if onProgress == nil {
			return
		}
		pct := 100
		if opts.Budget > 0 {
			pct = int(c.now().Sub(start) * 100 / opts.Budget)
			if pct > 100 {
				pct = 100
			}
		}
		onProgress(pct, res.Errors)
	}

	round := 0
	for !expired() && ctx.Err() == nil {
		round++
		candidates, err := c.proposeCandidates(ctx, round, known, processed)
		if err != nil {
			c.log.Warn("candidate proposal failed, ending batch", "round", round, "error", err)
			break
		}
		if len(candidates) > opts.PerRound {
			candidates = candidates[:opts.PerRound]
		}
		if len(candidates) == 0 {
			c.log.Info("no fresh candidates, ending batch", "round", round)
			break
		}

		for _, key := range candidates {
			if expired() || ctx.Err() != nil {
				break
			}
			processed[key] = true
			if err := c.deps.Store.MarkPending(key); err != nil {
				res.Errors = append(res.Errors, ConceptError{Concept: key, Kind: "register", Message: err.Error()})
				continue
			}
			c.runUnit(ctx, c.deps.Fast, key, &res)
			report()
		}
	}

	report()
	c.log.Info("batch run finished", "rounds", round, "learned", res.Learned, "errors", len(res.Errors))
	return res, ctx.Err()
}

// proposeCandidates asks the generator for new concepts and filters out
// anything already known or already attempted this run.
func (c *Cycle) proposeCandidates(ctx context.Context, round int, known, processed map[string]bool) ([]string, error) {
	var avoid []string
	for k := range processed {
		avoid = append(avoid, k)
	}
	sort.Strings(avoid)
	if len(avoid) > 30 {
		avoid = avoid[len(avoid)-30:]
	}

	prompt := fmt.Sprintf("Round %d. Propose concepts to learn.", round)
	if len(avoid) > 0 {
		prompt += "\nDo not repeat: " + strings.Join(avoid, ", ")
	}

	out, err := c.deps.Fast.Generate(ctx, proposeSystem, prompt)
	if err != nil {
		return nil, err
	}

	var fresh []string
	seen := make(map[string]bool)
	for _, part := range strings.FieldsFunc(out.Text, func(r rune) bool { return r == ',' || r == '\n' }) {
		key := strings.ToLower(strings.TrimSpace(part))
		key = strings.Trim(key, ".-* ")
		if len(key) < 3 || seen[key] || known[key] || processed[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, key)
	}
	return fresh, nil
}
