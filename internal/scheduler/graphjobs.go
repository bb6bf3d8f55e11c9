package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"seedling/internal/graph"
	"seedling/internal/learning"
	"seedling/internal/storage"
)

// reconcileEvery is how many checked concepts pass between progress updates.
const reconcileEvery = 100

// ConceptLister lists what the relational store considers known.
type ConceptLister interface {
	KnownKeys() (map[string]bool, error)
}

// ReconcileTask compares the relational store against the graph and reports
// concepts the graph is missing. It never repairs; repair is a human (or
// finalize-job) decision.
type ReconcileTask struct {
	store ConceptLister
	graph graph.Store
	log   *slog.Logger
}

func NewReconcileTask(store ConceptLister, g graph.Store, log *slog.Logger) *ReconcileTask {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileTask{store: store, graph: g, log: log}
}

// ReconcileReport is the result payload of a reconcile job.
type ReconcileReport struct {
	Checked int      `json:"checked"`
	Missing []string `json:"missing"`
}

func (t *ReconcileTask) Run(ctx context.Context, progress func(pct int)) (ReconcileReport, error) {
	known, err := t.store.KnownKeys()
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("loading known keys: %w", err)
	}

	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := ReconcileReport{Missing: []string{}}
	for _, key := range keys {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		status, err := t.graph.ReadStatus(ctx, key)
		if err != nil {
			return report, fmt.Errorf("reading graph status of %q: %w", key, err)
		}
		if status == "" {
			report.Missing = append(report.Missing, key)
		}
		report.Checked++
		if progress != nil && report.Checked%reconcileEvery == 0 {
			progress(report.Checked * 100 / len(keys))
		}
	}
	t.log.Info("reconcile finished", "checked", report.Checked, "missing", len(report.Missing))
	return report, nil
}

// FinalizeStore is the slice of storage finalization reads and writes.
type FinalizeStore interface {
	GetConcept(key string) (storage.Concept, error)
	UpdateRelations(key, relatedJSON, subtopicsJSON string) error
}

// Promoter re-writes the canonical record and refreshes its vector.
type Promoter interface {
	Promote(ctx context.Context, c storage.Concept) error
}

// FinalizeTask canonicalizes one concept: it folds the graph's accumulated
// relationships back into the relational record, refreshes the vector, and
// marks the graph node final.
type FinalizeTask struct {
	store FinalizeStore
	base  Promoter
	graph graph.Store
	log   *slog.Logger
}

func NewFinalizeTask(store FinalizeStore, base Promoter, g graph.Store, log *slog.Logger) *FinalizeTask {
	if log == nil {
		log = slog.Default()
	}
	return &FinalizeTask{store: store, base: base, graph: g, log: log}
}

// FinalizeReport is the result payload of a finalize job.
type FinalizeReport struct {
	Concept   string `json:"concept"`
	Related   int    `json:"related"`
	Subtopics int    `json:"subtopics"`
}

func (t *FinalizeTask) Run(ctx context.Context, key string) (FinalizeReport, error) {
	c, err := t.store.GetConcept(key)
	if err != nil {
		return FinalizeReport{}, fmt.Errorf("loading %q: %w", key, err)
	}
	if c.Status != storage.StatusKnown {
		return FinalizeReport{}, fmt.Errorf("finalizing %q: concept is not known", key)
	}

	node, ok, err := t.graph.FetchNode(ctx, key)
	if err != nil {
		return FinalizeReport{}, fmt.Errorf("fetching graph node %q: %w", key, err)
	}

	related := mergeLists(c.RelatedJSON, node.Related)
	subtopics := mergeLists(c.SubtopicsJSON, node.Subtopics)
	if ok {
		relatedJSON, _ := json.Marshal(related)
		subtopicsJSON, _ := json.Marshal(subtopics)
		if err := t.store.UpdateRelations(key, string(relatedJSON), string(subtopicsJSON)); err != nil {
			return FinalizeReport{}, fmt.Errorf("updating relations of %q: %w", key, err)
		}
	}

	// Re-promote the unchanged record: idempotent, and it refreshes the
	// vector from the merged state.
	if err := t.base.Promote(ctx, c); err != nil {
		return FinalizeReport{}, fmt.Errorf("refreshing %q: %w", key, err)
	}
	if err := t.graph.WriteStatus(ctx, key, graph.NodeStatusFinal); err != nil {
		return FinalizeReport{}, fmt.Errorf("marking %q final: %w", key, err)
	}

	t.log.Info("concept finalized", "concept", key, "related", len(related), "subtopics", len(subtopics))
	return FinalizeReport{Concept: key, Related: len(related), Subtopics: len(subtopics)}, nil
}

func mergeLists(existingJSON string, extra []string) []string {
	var existing []string
	_ = json.Unmarshal([]byte(existingJSON), &existing)

	seen := make(map[string]bool)
	out := []string{}
	for _, s := range append(existing, extra...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type finalizePayload struct {
	Concept string `json:"concept"`
}

func (s *Scheduler) runReconcile(ctx context.Context, job *storage.Job) {
	if s.reconcile == nil {
		s.fail(job.ID, []learning.ConceptError{{Kind: "job", Message: "graph store not configured"}})
		return
	}
	report, err := s.reconcile.Run(ctx, func(pct int) { s.reportProgress(job.ID, pct, nil) })
	if err != nil {
		s.fail(job.ID, []learning.ConceptError{{Kind: "reconcile", Message: err.Error()}})
		return
	}
	resultJSON, _ := json.Marshal(report)
	if err := s.jobs.CompleteJob(job.ID, string(resultJSON)); err != nil {
		s.log.Error("completing reconcile job failed", "id", job.ID, "error", err)
	}
}

func (s *Scheduler) runFinalize(ctx context.Context, job *storage.Job) {
	if s.finalize == nil {
		s.fail(job.ID, []learning.ConceptError{{Kind: "job", Message: "graph store not configured"}})
		return
	}
	var payload finalizePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil || payload.Concept == "" {
		s.fail(job.ID, []learning.ConceptError{{Kind: "job", Message: "finalize payload needs a concept field"}})
		return
	}
	report, err := s.finalize.Run(ctx, payload.Concept)
	if err != nil {
		s.fail(job.ID, []learning.ConceptError{{Concept: payload.Concept, Kind: "finalize", Message: err.Error()}})
		return
	}
	resultJSON, _ := json.Marshal(report)
	if err := s.jobs.CompleteJob(job.ID, string(resultJSON)); err != nil {
		s.log.Error("completing finalize job failed", "id", job.ID, "error", err)
	}
}
