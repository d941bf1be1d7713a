package jobs

import (
	"database/sql"
	"fmt"
)

// Dispatcher selects the next job to run.
// Selection rule: highest priority first, FIFO within a priority tier.
type Dispatcher struct {
	db *sql.DB
}

// NewDispatcher creates a new dispatcher over the job store's database.
func NewDispatcher(db *sql.DB) *Dispatcher {
	return &Dispatcher{db: db}
}

// NextPending returns the PENDING job that should run next, or nil when
// the queue is empty. The result is only a candidate: claiming it is a
// separate conditional transition that may lose to another worker.
func (d *Dispatcher) NextPending() (*Job, error) {
	row := d.db.QueryRow(jobSelectColumns+`
		FROM jobs
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT 1
	`, string(StatusPending))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next pending job: %w", err)
	}
	return job, nil
}

// QueuePosition returns the number of PENDING jobs that would run at or
// before a new job of the given priority. Reporting only; it is not an
// execution order guarantee beyond the selection rule.
func (d *Dispatcher) QueuePosition(p Priority) (int, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM jobs WHERE status = ? AND priority >= ?
	`, string(StatusPending), int(p)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to compute queue position: %w", err)
	}
	return count, nil
}
