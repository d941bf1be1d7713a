package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ResultRepository handles job result persistence in jobs.db.
// A job has at most one result, written exactly once at completion.
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a new job result repository.
func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save stores the result payload for a job.
// A second save for the same job is an error: results are write-once.
func (r *ResultRepository) Save(jobID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal result for job %s: %w", jobID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO job_results (job_id, payload, created_at)
		VALUES (?, ?, ?)
	`, jobID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save result for job %s: %w", jobID, err)
	}
	return nil
}

// Get retrieves the result payload for a job.
// Returns nil if the job has no result (not an error).
func (r *ResultRepository) Get(jobID string) (json.RawMessage, error) {
	var payload string
	err := r.db.QueryRow("SELECT payload FROM job_results WHERE job_id = ?", jobID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for job %s: %w", jobID, err)
	}
	return json.RawMessage(payload), nil
}
