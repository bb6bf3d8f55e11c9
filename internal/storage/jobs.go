package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, mode, payload_json, status, progress, errors_json,
	result_json, created_at, started_at, finished_at, updated_at`

// EnqueueJob inserts a new job in the queued state.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	payload := job.PayloadJSON
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, mode, payload_json, status, progress, errors_json, result_json, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', 0, '[]', '', ?, ?)`,
		job.ID, job.Mode, payload, now, now,
	)
	return err
}

// ClaimNextJob atomically moves the oldest queued job with one of the given
// modes to running and returns it. Returns nil when nothing is claimable.
func (s *Store) ClaimNextJob(modes []string) (*Job, error) {
	if len(modes) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(modes)-1)
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'queued' AND mode IN (?` + placeholders + `)
		ORDER BY created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(modes))
	for _, m := range modes {
		args = append(args, m)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	j, err := scanJob(tx.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', started_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`,
		now, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = JobRunning
	j.StartedAt, _ = time.Parse(time.RFC3339, now)
	j.UpdatedAt = j.StartedAt
	return &j, nil
}

// UpdateJobProgress records progress (clamped to 0..100) and the structured
// per-unit error list for a running job.
func (s *Store) UpdateJobProgress(id string, progress int, errorsJSON string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if errorsJSON == "" {
		errorsJSON = "[]"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET progress = ?, errors_json = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		progress, errorsJSON, now, id,
	)
	if err != nil {
		return err
	}
	return requireRunning(s.db, res, id)
}

// CompleteJob moves a running job to completed. Terminal jobs stay terminal.
func (s *Store) CompleteJob(id string, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = 'completed', progress = 100, result_json = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		resultJSON, now, now, id,
	)
	if err != nil {
		return err
	}
	return requireRunning(s.db, res, id)
}

// FailJob moves a running job to failed, recording the error list. There is
// no retry path: a failed job is never requeued.
func (s *Store) FailJob(id string, errorsJSON string) error {
	if errorsJSON == "" {
		errorsJSON = "[]"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = 'failed', errors_json = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		errorsJSON, now, now, id,
	)
	if err != nil {
		return err
	}
	return requireRunning(s.db, res, id)
}

func (s *Store) GetJob(id string) (Job, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

// requireRunning distinguishes "no such job" from "job not running" when a
// transition touched zero rows.
func requireRunning(db *sql.DB, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrTerminal
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var createdAt, updatedAt string
	var startedAt, finishedAt sql.NullString
	err := row.Scan(&j.ID, &j.Mode, &j.PayloadJSON, &j.Status, &j.Progress,
		&j.ErrorsJSON, &j.ResultJSON, &createdAt, &startedAt, &finishedAt, &updatedAt)
	if err != nil {
		return Job{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return Job{}, fmt.Errorf("parsing started_at for job %s: %w", j.ID, err)
	}
	if j.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return Job{}, fmt.Errorf("parsing finished_at for job %s: %w", j.ID, err)
	}
	return j, nil
}
