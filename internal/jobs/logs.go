package jobs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRepository handles append-only job log entries in jobs.db.
// Entries are never mutated or deleted by the engine.
type LogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLogRepository creates a new job log repository.
func NewLogRepository(db *sql.DB, log zerolog.Logger) *LogRepository {
	return &LogRepository{
		db:  db,
		log: log.With().Str("repository", "job_logs").Logger(),
	}
}

// Append writes one log entry for a job.
func (r *LogRepository) Append(jobID string, level LogLevel, message string, context map[string]any) error {
	ctxJSON, err := marshalContext(context)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO job_logs (job_id, level, message, context, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, string(level), message, ctxJSON, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append job log for %s: %w", jobID, err)
	}
	return nil
}

// AppendTx writes one log entry within an existing transaction.
func (r *LogRepository) AppendTx(tx *sql.Tx, jobID string, level LogLevel, message string, context map[string]any) error {
	ctxJSON, err := marshalContext(context)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO job_logs (job_id, level, message, context, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, string(level), message, ctxJSON, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append job log for %s: %w", jobID, err)
	}
	return nil
}

// List returns log entries for a job, oldest first.
func (r *LogRepository) List(jobID string, limit int) ([]JobLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT id, job_id, level, message, context, created_at
		FROM job_logs WHERE job_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs for %s: %w", jobID, err)
	}
	defer rows.Close()

	return r.scanLogs(rows)
}

// RecentErrors returns the most recent WARN/ERROR entries for a job,
// newest first. Used by the job status document.
func (r *LogRepository) RecentErrors(jobID string, limit int) ([]JobLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, job_id, level, message, context, created_at
		FROM job_logs WHERE job_id = ? AND level IN (?, ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, jobID, string(LogWarn), string(LogError), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent errors for %s: %w", jobID, err)
	}
	defer rows.Close()

	return r.scanLogs(rows)
}

func (r *LogRepository) scanLogs(rows *sql.Rows) ([]JobLog, error) {
	var logs []JobLog
	for rows.Next() {
		var entry JobLog
		var level, ctxJSON string
		var createdAt int64

		if err := rows.Scan(&entry.ID, &entry.JobID, &level, &entry.Message, &ctxJSON, &createdAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan job log row")
			continue
		}

		entry.Level = LogLevel(level)
		entry.CreatedAt = time.Unix(createdAt, 0)
		if ctxJSON != "" && ctxJSON != "{}" {
			if err := json.Unmarshal([]byte(ctxJSON), &entry.Context); err != nil {
				r.log.Warn().Err(err).Int64("log_id", entry.ID).Msg("Failed to unmarshal log context")
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func marshalContext(context map[string]any) (string, error) {
	if context == nil {
		return "{}", nil
	}
	data, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("failed to marshal log context: %w", err)
	}
	return string(data), nil
}
