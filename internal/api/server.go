// Package api exposes the assistant over HTTP (chi) and MCP. The HTTP
// surface covers chat, feedback-driven rethink (streamed), job control with
// SSE progress, and concept inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"seedling/internal/answer"
	"seedling/internal/knowledge"
	"seedling/internal/rethink"
	"seedling/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const defaultEventPoll = 500 * time.Millisecond

// Answerer resolves a prompt against the knowledge base.
type Answerer interface {
	Answer(ctx context.Context, prompt string) (answer.Response, error)
}

// Rethinker re-derives an answer after negative feedback.
type Rethinker interface {
	Rethink(ctx context.Context, prompt, wrongAnswer string, emit rethink.EmitFunc) string
}

// StatsProvider reports knowledge base counts.
type StatsProvider interface {
	Stats(ctx context.Context) (knowledge.Stats, error)
}

// Forgetter removes a concept and its vector.
type Forgetter interface {
	Forget(ctx context.Context, key string) error
}

// Refiner schedules periodic per-topic refinement. Start is bound to the
// server's lifetime, not the request's.
type Refiner interface {
	Start(topic string) error
	Stop(topic string)
	Status(topic string) (status, lastErr string, ok bool)
}

type AppDeps struct {
	Store     *storage.Store
	Answerer  Answerer
	Rethinker Rethinker
	Stats     StatsProvider
	Forgetter Forgetter
	Refiner   Refiner // optional; nil disables the refinement endpoints
	Token     string
	EventPoll time.Duration // job SSE poll interval; default 500ms
	Log       *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.EventPoll <= 0 {
		deps.EventPoll = defaultEventPoll
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/chat", handleChat(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Post("/jobs", handleCreateJob(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/jobs/{id}/events", handleJobEvents(deps))
		r.Get("/concepts", handleListConcepts(deps))
		r.Get("/concepts/{key}", handleGetConcept(deps))
		r.Delete("/concepts/{key}", handleRejectConcept(deps))
		r.Post("/refinements/{key}", handleStartRefinement(deps))
		r.Get("/refinements/{key}", handleRefinementStatus(deps))
		r.Delete("/refinements/{key}", handleStopRefinement(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Stats.Stats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading stats: %v", err)
			return
		}
		writeJSON(w, map[string]any{"status": "ok", "knowledge": stats})
	}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		resp, err := deps.Answerer.Answer(r.Context(), req.Prompt)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "answering failed: %v", err)
			return
		}
		writeJSON(w, resp)
	}
}

type feedbackRequest struct {
	Prompt      string `json:"prompt"`
	WrongAnswer string `json:"wrong_answer"`
}

// handleFeedback streams the rethink as SSE: stage events while it works,
// then a single answer event.
func handleFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" || req.WrongAnswer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt and wrong_answer are required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		sseHeaders(w)

		corrected := deps.Rethinker.Rethink(r.Context(), req.Prompt, req.WrongAnswer, func(stage string) {
			sseEvent(w, flusher, map[string]string{"type": "stage", "text": stage})
		})
		sseEvent(w, flusher, map[string]string{"type": "answer", "text": corrected})
	}
}

type createJobRequest struct {
	Mode    string          `json:"mode"`
	Payload json.RawMessage `json:"payload"`
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		switch req.Mode {
		case storage.ModeQuick, storage.ModeDeep, storage.ModeBatch, storage.ModeReconcile, storage.ModeFinalize:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown job mode %q", req.Mode)
			return
		}

		job := storage.Job{
			ID:          uuid.New().String(),
			Mode:        req.Mode,
			PayloadJSON: string(req.Payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing job: %v", err)
			return
		}

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"id": job.ID, "status": storage.JobQueued})
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := deps.Store.ListJobs(50)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing jobs: %v", err)
			return
		}
		out := make([]map[string]any, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, jobPayload(j))
		}
		writeJSON(w, out)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such job")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading job: %v", err)
			return
		}
		writeJSON(w, jobPayload(job))
	}
}

// handleJobEvents streams job snapshots as SSE until the job reaches a
// terminal status or the client disconnects.
func handleJobEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such job")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading job: %v", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		sseHeaders(w)

		ticker := time.NewTicker(deps.EventPoll)
		defer ticker.Stop()

		var last string
		for {
			job, err := deps.Store.GetJob(id)
			if err != nil {
				sseEvent(w, flusher, map[string]string{"type": "error", "text": "job lookup failed"})
				return
			}
			payload := jobPayload(job)
			encoded, _ := json.Marshal(payload)
			if string(encoded) != last {
				last = string(encoded)
				sseEvent(w, flusher, payload)
			}
			if job.Status == storage.JobCompleted || job.Status == storage.JobFailed {
				return
			}
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func handleListConcepts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status == "" {
			status = storage.StatusKnown
		}
		if status != storage.StatusKnown && status != storage.StatusPending {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be pending or known")
			return
		}

		concepts, err := deps.Store.ListByStatus(status, 200)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing concepts: %v", err)
			return
		}
		out := make([]map[string]any, 0, len(concepts))
		for _, c := range concepts {
			out = append(out, conceptPayload(c))
		}
		writeJSON(w, out)
	}
}

func handleGetConcept(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Store.GetConcept(chi.URLParam(r, "key"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such concept")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading concept: %v", err)
			return
		}
		writeJSON(w, conceptPayload(c))
	}
}

// handleRejectConcept removes a pending concept. Known concepts are never
// deleted over the API; they represent verified knowledge.
func handleRejectConcept(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		c, err := deps.Store.GetConcept(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such concept")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading concept: %v", err)
			return
		}
		if c.Status != storage.StatusPending {
			httpError(w, http.StatusConflict, "invalid_request_error", "only pending concepts can be rejected")
			return
		}

		if err := deps.Forgetter.Forget(r.Context(), key); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rejecting concept: %v", err)
			return
		}
		writeJSON(w, map[string]string{"rejected": key})
	}
}

// handleStartRefinement puts a known concept on the periodic refinement
// schedule. An already-active topic is a conflict.
func handleStartRefinement(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Refiner == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "refinement not configured")
			return
		}
		key := chi.URLParam(r, "key")
		c, err := deps.Store.GetConcept(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no such concept")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading concept: %v", err)
			return
		}
		if c.Status != storage.StatusKnown {
			httpError(w, http.StatusConflict, "invalid_request_error", "only known concepts can be refined")
			return
		}

		if err := deps.Refiner.Start(key); err != nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"topic": key, "status": "active"})
	}
}

func handleRefinementStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Refiner == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "refinement not configured")
			return
		}
		key := chi.URLParam(r, "key")
		status, lastErr, ok := deps.Refiner.Status(key)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "no refinement scheduled for %q", key)
			return
		}
		out := map[string]string{"topic": key, "status": status}
		if lastErr != "" {
			out["last_error"] = lastErr
		}
		writeJSON(w, out)
	}
}

func handleStopRefinement(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Refiner == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "refinement not configured")
			return
		}
		key := chi.URLParam(r, "key")
		deps.Refiner.Stop(key)
		writeJSON(w, map[string]string{"topic": key, "status": "stopped"})
	}
}

func jobPayload(j storage.Job) map[string]any {
	var errs []any
	if err := json.Unmarshal([]byte(j.ErrorsJSON), &errs); err != nil {
		errs = nil
	}
	out := map[string]any{
		"id":       j.ID,
		"mode":     j.Mode,
		"status":   j.Status,
		"progress": j.Progress,
		"errors":   errs,
	}
	if j.ResultJSON != "" {
		out["result"] = json.RawMessage(j.ResultJSON)
	}
	return out
}

func conceptPayload(c storage.Concept) map[string]any {
	var related, subtopics []string
	_ = json.Unmarshal([]byte(c.RelatedJSON), &related)
	_ = json.Unmarshal([]byte(c.SubtopicsJSON), &subtopics)

	out := map[string]any{
		"key":          c.Key,
		"status":       c.Status,
		"definition":   c.Definition,
		"category":     c.Category,
		"related":      related,
		"subtopics":    subtopics,
		"domain":       c.Domain,
		"source":       c.Source,
		"provider":     c.Provider,
		"bootstrapped": c.Bootstrapped,
	}
	if c.ExpandedDefinition != "" {
		out["expanded_definition"] = c.ExpandedDefinition
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func sseEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", encoded)
	flusher.Flush()
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
