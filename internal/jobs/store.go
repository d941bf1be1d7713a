package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/database"
)

// ErrNotRunning indicates a progress update for a job that is not RUNNING.
// Progress is only accepted while a job is executing; updates after a
// terminal transition (including cancellation) are rejected.
var ErrNotRunning = errors.New("job is not running")

// Store is the durable job repository backed by jobs.db.
// All state machine mutations go through it, and every status transition
// is guarded by a conditional update so that two workers can never both
// claim the same PENDING job.
type Store struct {
	db   *sql.DB
	logs *LogRepository
	log  zerolog.Logger
}

// NewStore creates a new job store.
func NewStore(db *sql.DB, logs *LogRepository, log zerolog.Logger) *Store {
	return &Store{
		db:   db,
		logs: logs,
		log:  log.With().Str("repository", "jobs").Logger(),
	}
}

// NewJob builds an unsaved PENDING job with computed totals and estimate.
func NewJob(t JobType, params Parameters, meta Metadata, createdBy string) *Job {
	totalItems := computeTotalItems(t, params)
	return &Job{
		ID:                uuid.New().String(),
		Type:              t,
		Status:            StatusPending,
		Priority:          PriorityNormal,
		Parameters:        params,
		Metadata:          meta,
		TotalItems:        totalItems,
		EstimatedDuration: EstimateDuration(t, totalItems),
		CreatedBy:         createdBy,
		CreatedAt:         time.Now(),
	}
}

// computeTotalItems derives the unit count deterministically from parameters.
// Range-based jobs have one unit per calendar day; report generation is a
// single unit. A missing or malformed range yields zero units - the handler
// will reject it as a setup error at execution time.
func computeTotalItems(t JobType, params Parameters) int {
	switch t {
	case TypeBulkReportGeneration:
		return 1
	default:
		if params.DateRange == nil {
			return 0
		}
		days, err := params.DateRange.Days()
		if err != nil {
			return 0
		}
		return days
	}
}

// Create persists a new PENDING job and writes its creation log entry.
func (s *Store) Create(job *Job) error {
	paramsJSON, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal job parameters: %w", err)
	}
	metaJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		// created_at holds unix nanoseconds: submissions within the same
		// second must still order FIFO within a priority tier.
		_, err := tx.Exec(`
			INSERT INTO jobs
				(id, type, status, priority, parameters, metadata,
				 total_items, processed_items, failed_items, progress_percentage,
				 estimated_duration, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?)
		`, job.ID, string(job.Type), string(job.Status), int(job.Priority),
			string(paramsJSON), string(metaJSON),
			job.TotalItems, job.EstimatedDuration, job.CreatedBy, job.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}

		return s.logs.AppendTx(tx, job.ID, LogInfo, "job created", map[string]any{
			"type":       string(job.Type),
			"priority":   job.Priority.String(),
			"totalItems": job.TotalItems,
		})
	})
}

// Get retrieves a job by id. Returns ErrNotFound for unknown ids.
func (s *Store) Get(id string) (*Job, error) {
	row := s.db.QueryRow(jobSelectColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// ListFilter narrows and paginates List results.
type ListFilter struct {
	Status Status
	Type   JobType
	Limit  int
	Offset int
}

// List returns jobs matching the filter, newest first.
func (s *Store) List(filter ListFilter) ([]Job, error) {
	query := jobSelectColumns + " FROM jobs WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to scan job row")
			continue
		}
		result = append(result, *job)
	}
	return result, rows.Err()
}

// Transition moves a job to a new status, enforcing the state machine.
//
// The update is conditional on the status still being the value that was
// read: if a concurrent writer changed it in between, the transition is
// retried against the fresh state and fails with InvalidTransitionError
// if the edge is no longer allowed. This makes the PENDING -> RUNNING
// claim safe under concurrent workers: at most one conditional update can
// see the row as PENDING.
func (s *Store) Transition(id string, to Status, reason string) (*Job, error) {
	var updated *Job

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		row := tx.QueryRow(jobSelectColumns+" FROM jobs WHERE id = ?", id)
		job, err := scanJob(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read job %s: %w", id, err)
		}

		if !CanTransition(job.Status, to) {
			return &InvalidTransitionError{JobID: id, From: job.Status, To: to}
		}

		now := time.Now()
		set := "status = ?"
		args := []interface{}{string(to)}

		if to == StatusRunning && job.StartedAt == nil {
			set += ", started_at = ?"
			args = append(args, now.Unix())
		}
		if to.IsTerminal() {
			set += ", completed_at = ?"
			args = append(args, now.Unix())
		}

		args = append(args, id, string(job.Status))
		res, err := tx.Exec("UPDATE jobs SET "+set+" WHERE id = ? AND status = ?", args...)
		if err != nil {
			return fmt.Errorf("failed to transition job %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			// Lost a race with a concurrent writer.
			return &InvalidTransitionError{JobID: id, From: job.Status, To: to}
		}

		logCtx := map[string]any{
			"oldStatus": string(job.Status),
			"newStatus": string(to),
		}
		if reason != "" {
			logCtx["reason"] = reason
		}
		if err := s.logs.AppendTx(tx, id, LogInfo, "status changed", logCtx); err != nil {
			return err
		}

		job.Status = to
		if to == StatusRunning && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if to.IsTerminal() {
			job.CompletedAt = &now
		}
		updated = job
		return nil
	})
	if err != nil {
		// Unwrap the transaction decoration for the typed errors callers match on.
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			return nil, invalid
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.log.Debug().Str("job", id).Str("status", string(to)).Msg("job transitioned")
	return updated, nil
}

// Claim attempts the PENDING -> RUNNING transition for a job.
// Returns false when another worker won the claim.
func (s *Store) Claim(id string) (*Job, bool, error) {
	job, err := s.Transition(id, StatusRunning, "claimed by worker")
	if err != nil {
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

// UpdateProgress persists the progress counters for a RUNNING job.
//
// Counters are monotonic: a report lower than the stored value is floored
// to it, so progress never rewinds. processed is clamped so that
// processed + failed never exceeds total. The derived percentage is
// recomputed from the stored total and clamped to [0, 100].
func (s *Store) UpdateProgress(id string, processed, failed int, currentUnit string) error {
	if processed < 0 || failed < 0 {
		return fmt.Errorf("negative progress counters (processed=%d failed=%d)", processed, failed)
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var status string
		var total, curProcessed, curFailed int
		err := tx.QueryRow(`
			SELECT status, total_items, processed_items, failed_items
			FROM jobs WHERE id = ?
		`, id).Scan(&status, &total, &curProcessed, &curFailed)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read job %s progress: %w", id, err)
		}

		if Status(status) != StatusRunning {
			return fmt.Errorf("%w (status=%s)", ErrNotRunning, status)
		}

		if processed < curProcessed {
			processed = curProcessed
		}
		if failed < curFailed {
			failed = curFailed
		}
		if total > 0 && processed+failed > total {
			processed = total - failed
			if processed < curProcessed {
				processed = curProcessed
			}
		}

		percentage := 0.0
		if total > 0 {
			percentage = float64(processed) / float64(total) * 100.0
			if percentage > 100 {
				percentage = 100
			}
		}

		_, err = tx.Exec(`
			UPDATE jobs
			SET processed_items = ?, failed_items = ?, progress_percentage = ?, current_unit = ?
			WHERE id = ? AND status = ?
		`, processed, failed, percentage, nullable(currentUnit), id, string(StatusRunning))
		if err != nil {
			return fmt.Errorf("failed to update progress for job %s: %w", id, err)
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// CountPendingAtOrAbove returns the number of PENDING jobs with priority >= p.
// Used for queue position reporting only.
func (s *Store) CountPendingAtOrAbove(p Priority) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM jobs WHERE status = ? AND priority >= ?
	`, string(StatusPending), int(p)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

const jobSelectColumns = `
	SELECT id, type, status, priority, parameters, metadata,
	       total_items, processed_items, failed_items, progress_percentage,
	       current_unit, estimated_duration, created_by, created_at, started_at, completed_at`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*Job, error) {
	var job Job
	var jobType, status string
	var priority int
	var paramsJSON, metaJSON string
	var currentUnit sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := s.Scan(&job.ID, &jobType, &status, &priority, &paramsJSON, &metaJSON,
		&job.TotalItems, &job.ProcessedItems, &job.FailedItems, &job.ProgressPercentage,
		&currentUnit, &job.EstimatedDuration, &job.CreatedBy, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Type = JobType(jobType)
	job.Status = Status(status)
	job.Priority = Priority(priority)
	job.CreatedAt = time.Unix(0, createdAt)
	if currentUnit.Valid {
		job.CurrentUnit = currentUnit.String
	}
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}

	if err := json.Unmarshal([]byte(paramsJSON), &job.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters for job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &job.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for job %s: %w", job.ID, err)
	}

	return &job, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
