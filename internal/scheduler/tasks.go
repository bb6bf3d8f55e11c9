package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Refinement topic statuses.
const (
	TopicActive  = "active"
	TopicError   = "error"
	TopicStopped = "stopped"
)

// RefineFunc re-runs knowledge refinement for one topic.
type RefineFunc func(ctx context.Context, topic string) error

// Refinery schedules periodic refinement per topic. The first error stops
// that topic's rescheduling permanently: a circuit breaker, not a retry
// loop, so a broken topic cannot drive infinite wakeups.
type Refinery struct {
	interval time.Duration
	refine   RefineFunc
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration)

	mu     sync.Mutex
	topics map[string]*topicState
	wg     sync.WaitGroup
}

type topicState struct {
	status  string
	lastErr string
	cancel  context.CancelFunc
}

func NewRefinery(interval time.Duration, refine RefineFunc, log *slog.Logger) *Refinery {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Refinery{
		interval: interval,
		refine:   refine,
		log:      log,
		sleep:    sleepCtx,
		topics:   make(map[string]*topicState),
	}
}

// Start begins refining the topic on the configured interval. A topic that
// is already active is left alone; one that previously errored or stopped
// is restarted.
func (r *Refinery) Start(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.topics[topic]; ok && st.status == TopicActive {
		return fmt.Errorf("topic %q already scheduled", topic)
	}

	tctx, cancel := context.WithCancel(ctx)
	r.topics[topic] = &topicState{status: TopicActive, cancel: cancel}
	r.wg.Add(1)
	go r.loop(tctx, topic)
	return nil
}

// Stop clears the topic's schedule.
func (r *Refinery) Stop(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.topics[topic]; ok {
		st.cancel()
		if st.status == TopicActive {
			st.status = TopicStopped
		}
	}
}

// StopAll cancels every topic and waits for their loops to exit.
func (r *Refinery) StopAll() {
	r.mu.Lock()
	for _, st := range r.topics {
		st.cancel()
		if st.status == TopicActive {
			st.status = TopicStopped
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Status reports the topic's state and last error, if any.
func (r *Refinery) Status(topic string) (status, lastErr string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.topics[topic]
	if !ok {
		return "", "", false
	}
	return st.status, st.lastErr, true
}

func (r *Refinery) loop(ctx context.Context, topic string) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		if err := r.refine(ctx, topic); err != nil {
			r.mu.Lock()
			if st, ok := r.topics[topic]; ok {
				st.status = TopicError
				st.lastErr = err.Error()
			}
			r.mu.Unlock()
			r.log.Warn("refinement errored, topic unscheduled", "topic", topic, "error", err)
			return
		}
		r.sleep(ctx, r.interval)
	}
}

// Recovery outcome statuses.
const (
	RecoveryRecovered = "recovered"
	RecoveryFailed    = "failed"
)

// RecoveryOutcome reports how a recovery run ended.
type RecoveryOutcome struct {
	Status   string
	Answer   string
	Attempts int
}

// AttemptFunc performs one full recovery attempt (research + regeneration)
// and returns a candidate answer.
type AttemptFunc func(ctx context.Context, attempt int) (string, error)

// Recovery retries a failed interactive answer a bounded number of times
// with a fixed backoff between attempts. It stops early the moment an
// attempt produces a non-empty answer that differs from the failed one.
type Recovery struct {
	Attempts int
	Backoff  time.Duration
	Log      *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

func NewRecovery(attempts int, backoff time.Duration, log *slog.Logger) *Recovery {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recovery{Attempts: attempts, Backoff: backoff, Log: log, sleep: sleepCtx}
}

func (r *Recovery) Run(ctx context.Context, failedAnswer string, attempt AttemptFunc) RecoveryOutcome {
	out := RecoveryOutcome{Status: RecoveryFailed}
	for i := 1; i <= r.Attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		out.Attempts = i

		answer, err := attempt(ctx, i)
		if err != nil {
			r.Log.Warn("recovery attempt failed", "attempt", i, "error", err)
		} else if a := strings.TrimSpace(answer); a != "" && a != strings.TrimSpace(failedAnswer) {
			out.Status = RecoveryRecovered
			out.Answer = a
			return out
		}

		if i < r.Attempts {
			r.sleep(ctx, r.Backoff)
		}
	}
	return out
}
