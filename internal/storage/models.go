package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminal is returned when a job status transition is attempted on a job
// that already reached completed or failed.
var ErrTerminal = errors.New("job already terminal")

// Concept statuses. A concept is in exactly one of the two sets; promotion
// from pending to known is one-way.
const (
	StatusPending = "pending"
	StatusKnown   = "known"
)

// Concept is one row of the knowledge base. Pending rows carry only a key;
// the remaining fields are filled at promotion time.
type Concept struct {
	Key                string
	Status             string // "pending" or "known"
	Definition         string
	ExpandedDefinition string
	Category           string
	RelatedJSON        string // JSON array stored as text
	SubtopicsJSON      string // JSON array stored as text
	Domain             string
	Source             string // "web+llm", "llm-only", "web-raw", "seed"
	Provider           string // name of the provider that produced the definition
	Bootstrapped       bool
	CreatedAt          time.Time
	LearnedAt          time.Time // zero until promoted
	LastDeepenedAt     time.Time // zero until deepened
}

// ReviewEntry records a prompt the assistant could not answer confidently,
// together with the candidate concepts extracted from it. Append-only.
type ReviewEntry struct {
	ID             string
	Prompt         string
	CandidatesJSON string // JSON array stored as text
	CreatedAt      time.Time
}

// Job statuses. Transitions are strictly queued -> running -> completed|failed;
// terminal jobs are never resurrected.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job modes the background runner understands.
const (
	ModeQuick     = "quick"
	ModeDeep      = "deep"
	ModeBatch     = "batch"
	ModeReconcile = "reconcile"
	ModeFinalize  = "finalize"
)

type Job struct {
	ID          string
	Mode        string
	PayloadJSON string
	Status      string
	Progress    int    // 0..100
	ErrorsJSON  string // JSON array of per-unit errors
	ResultJSON  string
	CreatedAt   time.Time
	StartedAt   time.Time // zero until claimed
	FinishedAt  time.Time // zero until terminal
	UpdatedAt   time.Time
}
