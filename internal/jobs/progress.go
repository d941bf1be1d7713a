package jobs

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/events"
)

// Tracker reports progress for one executing job.
//
// It persists the counters atomically through the store (which enforces
// monotonicity and the processed+failed <= total invariant), and writes a
// milestone job log each time progress crosses a 10% boundary, so long
// jobs produce a bounded number of log rows.
type Tracker struct {
	store *Store
	logs  *LogRepository
	bus   *events.Bus
	log   zerolog.Logger

	jobID   string
	jobType JobType
	total   int

	lastMilestone int // Last 10% bucket a milestone log was written for
}

// NewTracker creates a progress tracker bound to one job execution.
func NewTracker(store *Store, logs *LogRepository, bus *events.Bus, log zerolog.Logger, job *Job) *Tracker {
	return &Tracker{
		store:   store,
		logs:    logs,
		bus:     bus,
		log:     log.With().Str("component", "progress").Str("job", job.ID).Logger(),
		jobID:   job.ID,
		jobType: job.Type,
		total:   job.TotalItems,
	}
}

// Report persists cumulative progress counters and emits milestone logs.
// currentUnit labels the unit being processed (typically a date).
func (t *Tracker) Report(processed, failed int, currentUnit string) error {
	if err := t.store.UpdateProgress(t.jobID, processed, failed, currentUnit); err != nil {
		return err
	}

	percentage := 0.0
	if t.total > 0 {
		percentage = float64(processed) / float64(t.total) * 100.0
		if percentage > 100 {
			percentage = 100
		}
	}

	if t.bus != nil {
		t.bus.Emit("jobs", &events.JobProgressData{
			JobID:       t.jobID,
			JobType:     string(t.jobType),
			Processed:   processed,
			Failed:      failed,
			Total:       t.total,
			Percentage:  percentage,
			CurrentUnit: currentUnit,
		})
	}

	// Milestone log on each 10% boundary crossing.
	milestone := int(percentage) / 10
	if milestone > t.lastMilestone && percentage > 0 {
		t.lastMilestone = milestone
		err := t.logs.Append(t.jobID, LogInfo,
			fmt.Sprintf("progress %d%%", milestone*10),
			map[string]any{
				"processed": processed,
				"failed":    failed,
				"total":     t.total,
			})
		if err != nil {
			t.log.Warn().Err(err).Msg("Failed to write milestone log")
		}
	}

	return nil
}

// Halted reports whether the job is no longer RUNNING (paused or
// cancelled underneath the handler). Handlers check this at each unit
// boundary: cancellation is cooperative, an in-flight unit always
// finishes first.
func (t *Tracker) Halted() (bool, Status, error) {
	job, err := t.store.Get(t.jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, "", err
		}
		return false, "", err
	}
	return job.Status != StatusRunning, job.Status, nil
}

// Log appends a job log entry. Handlers use this for per-unit errors and
// other domain events that belong to the job's audit trail rather than
// the process log.
func (t *Tracker) Log(level LogLevel, message string, context map[string]any) {
	if err := t.logs.Append(t.jobID, level, message, context); err != nil {
		t.log.Warn().Err(err).Msg("Failed to append job log")
	}
}

// Total returns the job's stored unit count.
func (t *Tracker) Total() int {
	return t.total
}
