// Package scheduler runs the background half of the system: a bounded
// worker pool that claims queued jobs from sqlite, periodic refinement
// tasks with a one-error circuit breaker, and bounded-retry recovery for
// failed interactive answers. Tasks mutate only their own records; all
// knowledge writes go through the learning primitives.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"seedling/internal/learning"
	"seedling/internal/storage"
)

const defaultPollInterval = 2 * time.Second

// JobStore is the slice of storage the runner drives jobs through.
type JobStore interface {
	ClaimNextJob(modes []string) (*storage.Job, error)
	UpdateJobProgress(id string, progress int, errorsJSON string) error
	CompleteJob(id string, resultJSON string) error
	FailJob(id string, errorsJSON string) error
}

// CycleRunner is the learning surface jobs invoke.
type CycleRunner interface {
	Quick(ctx context.Context) (learning.Result, error)
	Deep(ctx context.Context) (learning.Result, error)
	Batch(ctx context.Context, opts learning.BatchOptions, onProgress learning.ProgressFunc) (learning.Result, error)
}

// Options tunes the scheduler.
type Options struct {
	Workers       int
	PollInterval  time.Duration
	BatchDeadline time.Duration
	BatchPerRound int
}

type Scheduler struct {
	jobs      JobStore
	cycle     CycleRunner
	reconcile *ReconcileTask // may be nil when no graph is configured
	finalize  *FinalizeTask  // may be nil when no graph is configured
	opts      Options
	log       *slog.Logger

	// sleep is a seam for deterministic tests.
	sleep func(ctx context.Context, d time.Duration)
}

func New(jobs JobStore, cycle CycleRunner, reconcile *ReconcileTask, finalize *FinalizeTask, opts Options, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchDeadline <= 0 {
		opts.BatchDeadline = 10 * time.Minute
	}
	return &Scheduler{
		jobs:      jobs,
		cycle:     cycle,
		reconcile: reconcile,
		finalize:  finalize,
		opts:      opts,
		log:       log,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var jobModes = []string{storage.ModeQuick, storage.ModeDeep, storage.ModeBatch, storage.ModeReconcile, storage.ModeFinalize}

// Run polls for queued jobs and executes them on a bounded pool until ctx is
// canceled. It returns only after in-flight jobs finish.
func (s *Scheduler) Run(ctx context.Context) error {
	g := &errgroup.Group{}
	g.SetLimit(s.opts.Workers)

	for ctx.Err() == nil {
		job, err := s.jobs.ClaimNextJob(jobModes)
		if err != nil {
			s.log.Error("claiming job failed", "error", err)
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}
		if job == nil {
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}
		g.Go(func() error {
			s.runJob(ctx, job)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

// RunPending drains currently queued jobs without polling. Used by tests and
// the one-shot CLI path.
func (s *Scheduler) RunPending(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := s.jobs.ClaimNextJob(jobModes)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		s.runJob(ctx, job)
	}
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, job *storage.Job) {
	s.log.Info("job started", "id", job.ID, "mode", job.Mode)

	var (
		res learning.Result
		err error
	)
	switch job.Mode {
	case storage.ModeQuick:
		res, err = s.cycle.Quick(ctx)
	case storage.ModeDeep:
		res, err = s.cycle.Deep(ctx)
	case storage.ModeBatch:
		res, err = s.cycle.Batch(ctx,
			learning.BatchOptions{Budget: s.opts.BatchDeadline, PerRound: s.opts.BatchPerRound},
			func(pct int, errs []learning.ConceptError) {
				s.reportProgress(job.ID, pct, errs)
			})
	case storage.ModeReconcile:
		s.runReconcile(ctx, job)
		return
	case storage.ModeFinalize:
		s.runFinalize(ctx, job)
		return
	default:
		s.fail(job.ID, []learning.ConceptError{{Kind: "job", Message: "unknown mode " + job.Mode}})
		return
	}

	if err != nil {
		s.fail(job.ID, append(res.Errors, learning.ConceptError{Kind: "job", Message: err.Error()}))
		return
	}
	s.complete(job.ID, res)
}

func (s *Scheduler) reportProgress(id string, pct int, errs []learning.ConceptError) {
	errorsJSON := marshalErrors(errs)
	if err := s.jobs.UpdateJobProgress(id, pct, errorsJSON); err != nil {
		s.log.Warn("progress update failed", "id", id, "error", err)
	}
}

func (s *Scheduler) complete(id string, res learning.Result) {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		resultJSON = []byte("{}")
	}
	if err := s.jobs.CompleteJob(id, string(resultJSON)); err != nil {
		s.log.Error("completing job failed", "id", id, "error", err)
		return
	}
	s.log.Info("job completed", "id", id, "learned", res.Learned, "errors", len(res.Errors))
}

func (s *Scheduler) fail(id string, errs []learning.ConceptError) {
	if err := s.jobs.FailJob(id, marshalErrors(errs)); err != nil {
		s.log.Error("failing job failed", "id", id, "error", err)
		return
	}
	s.log.Warn("job failed", "id", id, "errors", len(errs))
}

func marshalErrors(errs []learning.ConceptError) string {
	if len(errs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
