package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/events"
)

// RecordCounter counts stored sentiment records in a date range.
// Used to size DATA_VALIDATION jobs at submission time.
type RecordCounter interface {
	CountRange(startDate, endDate string) (int, error)
}

// Service is the submission gateway core: it validates submissions,
// creates jobs, answers status queries, and applies control transitions.
// Authorization is an external concern; callers arrive with an
// established identity in createdBy.
type Service struct {
	store      *Store
	logs       *LogRepository
	results    *ResultRepository
	dispatcher *Dispatcher
	bus        *events.Bus
	counter    RecordCounter
	log        zerolog.Logger

	wake func() // Optional worker wake-up hook
}

// NewService creates a new job service.
func NewService(store *Store, logs *LogRepository, results *ResultRepository, dispatcher *Dispatcher, bus *events.Bus, counter RecordCounter, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		logs:       logs,
		results:    results,
		dispatcher: dispatcher,
		bus:        bus,
		counter:    counter,
		log:        log.With().Str("component", "job_service").Logger(),
	}
}

// SetWake installs a hook invoked after submissions and resumes, so the
// worker can pick up work without waiting for its next tick.
func (s *Service) SetWake(wake func()) {
	s.wake = wake
}

// SubmitRequest is the submission payload.
type SubmitRequest struct {
	Type       JobType    `json:"type"`
	Parameters Parameters `json:"parameters"`
	Metadata   Metadata   `json:"metadata"`
}

// SubmitResponse is returned on successful job creation.
type SubmitResponse struct {
	JobID             string    `json:"jobId"`
	Status            Status    `json:"status"`
	EstimatedDuration int       `json:"estimatedDuration"`
	CreatedAt         time.Time `json:"createdAt"`
	QueuePosition     int       `json:"queuePosition"`
}

// Submit validates a submission and persists a new PENDING job.
// Malformed submissions fail with ValidationError before any job exists.
func (s *Service) Submit(req SubmitRequest, createdBy string) (*SubmitResponse, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	priority, _ := ParsePriority(req.Parameters.Priority)

	job := NewJob(req.Type, req.Parameters, req.Metadata, createdBy)
	job.Priority = priority

	// Validation jobs iterate stored records, so their unit count comes
	// from the store, not the calendar.
	if req.Type == TypeDataValidation && s.counter != nil {
		var start, end string
		if req.Parameters.DateRange != nil {
			start, end = req.Parameters.DateRange.StartDate, req.Parameters.DateRange.EndDate
		}
		count, err := s.counter.CountRange(start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to count records for validation job: %w", err)
		}
		job.TotalItems = count
		job.EstimatedDuration = EstimateDuration(req.Type, count)
	}

	if err := s.store.Create(job); err != nil {
		return nil, err
	}

	position, err := s.dispatcher.QueuePosition(job.Priority)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to compute queue position")
		position = 0
	}

	if s.bus != nil {
		s.bus.Emit("gateway", &events.JobStatusData{
			JobID:   job.ID,
			JobType: string(job.Type),
			Status:  string(StatusPending),
		})
	}
	if s.wake != nil {
		s.wake()
	}

	s.log.Info().
		Str("job", job.ID).
		Str("type", string(job.Type)).
		Str("priority", job.Priority.String()).
		Int("total_items", job.TotalItems).
		Msg("job submitted")

	return &SubmitResponse{
		JobID:             job.ID,
		Status:            job.Status,
		EstimatedDuration: job.EstimatedDuration,
		CreatedAt:         job.CreatedAt,
		QueuePosition:     position,
	}, nil
}

// validateSubmission checks the submission shape.
func validateSubmission(req SubmitRequest) error {
	if !IsKnownType(req.Type) {
		return &ValidationError{Field: "type", Msg: fmt.Sprintf("unknown job type %q", req.Type)}
	}

	p := req.Parameters

	if p.DateRange != nil {
		if _, err := p.DateRange.Days(); err != nil {
			return &ValidationError{Field: "dateRange", Msg: err.Error()}
		}
	}

	if p.ChunkSize != 0 && (p.ChunkSize < 1 || p.ChunkSize > 1000) {
		return &ValidationError{Field: "chunkSize", Msg: fmt.Sprintf("must be between 1 and 1000, got %d", p.ChunkSize)}
	}

	switch p.ValidationLevel {
	case "", ValidationBasic, ValidationComprehensive:
	default:
		return &ValidationError{Field: "validationLevel", Msg: fmt.Sprintf("unknown level %q", p.ValidationLevel)}
	}

	switch p.ProcessingStrategy {
	case "", "CHUNKED", "STREAM", "PARALLEL":
	default:
		return &ValidationError{Field: "processingStrategy", Msg: fmt.Sprintf("unknown strategy %q", p.ProcessingStrategy)}
	}

	if _, err := ParsePriority(p.Priority); err != nil {
		return &ValidationError{Field: "priority", Msg: err.Error()}
	}

	if p.NewWeights != nil {
		if err := p.NewWeights.Validate(); err != nil {
			return &ValidationError{Field: "newWeights", Msg: err.Error()}
		}
	}

	return nil
}

// Get returns a job by id.
func (s *Service) Get(id string) (*Job, error) {
	return s.store.Get(id)
}

// List returns jobs matching the filter.
func (s *Service) List(filter ListFilter) ([]Job, error) {
	return s.store.List(filter)
}

// Logs returns log entries for a job, oldest first.
func (s *Service) Logs(id string, limit int) ([]JobLog, error) {
	if _, err := s.store.Get(id); err != nil {
		return nil, err
	}
	return s.logs.List(id, limit)
}

// ProgressInfo is the progress section of a status document.
type ProgressInfo struct {
	TotalItems             int     `json:"totalItems"`
	ProcessedItems         int     `json:"processedItems"`
	FailedItems            int     `json:"failedItems"`
	ProgressPercentage     float64 `json:"progressPercentage"`
	ItemsPerSecond         float64 `json:"itemsPerSecond"`
	EstimatedTimeRemaining *int    `json:"estimatedTimeRemaining,omitempty"` // seconds
}

// ExecutionInfo is the execution section of a status document.
type ExecutionInfo struct {
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Duration    *float64   `json:"duration,omitempty"` // seconds
}

// ErrorEntry is one recent WARN/ERROR log entry in a status document.
type ErrorEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// StatusResponse is the full job status document.
type StatusResponse struct {
	JobID     string          `json:"jobId"`
	Type      JobType         `json:"type"`
	Status    Status          `json:"status"`
	Priority  string          `json:"priority"`
	Progress  ProgressInfo    `json:"progress"`
	Execution ExecutionInfo   `json:"execution"`
	Result    json.RawMessage `json:"result,omitempty"`
	Errors    []ErrorEntry    `json:"errors"`
}

// Status builds the status document for a job, including its result (if
// any) and recent error logs. Always available, including after failure.
func (s *Service) Status(id string) (*StatusResponse, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		JobID:    job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Priority: job.Priority.String(),
		Progress: ProgressInfo{
			TotalItems:         job.TotalItems,
			ProcessedItems:     job.ProcessedItems,
			FailedItems:        job.FailedItems,
			ProgressPercentage: job.ProgressPercentage,
		},
		Execution: ExecutionInfo{
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
		},
		Errors: []ErrorEntry{},
	}

	// Throughput and ETA are derived at read time.
	if job.StartedAt != nil {
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		elapsed := end.Sub(*job.StartedAt).Seconds()
		if elapsed > 0 {
			duration := elapsed
			resp.Execution.Duration = &duration

			if job.ProcessedItems > 0 {
				rate := float64(job.ProcessedItems) / elapsed
				resp.Progress.ItemsPerSecond = rate

				if job.Status == StatusRunning && rate > 0 {
					remaining := job.TotalItems - job.ProcessedItems - job.FailedItems
					if remaining > 0 {
						eta := int(float64(remaining) / rate)
						resp.Progress.EstimatedTimeRemaining = &eta
					}
				}
			}
		}
	}

	result, err := s.results.Get(id)
	if err != nil {
		return nil, err
	}
	resp.Result = result

	recent, err := s.logs.RecentErrors(id, 20)
	if err != nil {
		return nil, err
	}
	for _, entry := range recent {
		resp.Errors = append(resp.Errors, ErrorEntry{
			Timestamp: entry.CreatedAt,
			Level:     entry.Level,
			Message:   entry.Message,
			Context:   entry.Context,
		})
	}

	return resp, nil
}

// Control actions.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionCancel = "cancel"
)

// Control applies a named control action to a job.
//
// Controls are idempotent on terminal states: starting, pausing or
// cancelling an already-finished job returns its current state with no
// error, so callers can retry safely.
func (s *Service) Control(id, action string) (*Job, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return job, nil
	}

	switch action {
	case ActionStart:
		switch job.Status {
		case StatusPaused:
			job, err = s.store.Transition(id, StatusRunning, "resumed by caller")
			if err == nil && s.wake != nil {
				s.wake()
			}
			return job, err
		case StatusPending:
			// Already queued; nudge the worker.
			if s.wake != nil {
				s.wake()
			}
			return job, nil
		default:
			return job, nil // Already running
		}

	case ActionPause:
		if job.Status == StatusPaused {
			return job, nil
		}
		return s.store.Transition(id, StatusPaused, "paused by caller")

	case ActionCancel:
		// Cancellation is a forced FAILED transition. The worker observes
		// it at the next unit boundary; committed units are not rolled back.
		return s.store.Transition(id, StatusFailed, "cancelled by caller")

	default:
		return nil, &ValidationError{Field: "action", Msg: fmt.Sprintf("unknown action %q", action)}
	}
}

// QueueDepth returns the number of PENDING jobs across all priorities.
func (s *Service) QueueDepth() (int, error) {
	return s.store.CountPendingAtOrAbove(PriorityLow)
}

// IsNotFound reports whether err is a missing-job error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
