// Package jobs implements the durable batch job engine: the job store and
// its state machine, the priority dispatcher, the polling worker loop, the
// strategy registry, and fine-grained progress tracking.
//
// A job is a long-running, range-based workload (historical backfill, index
// recalculation, data validation, bulk report generation) made up of many
// individually-processable units - typically one unit per calendar date.
// Per-unit failures are absorbed into counters and never abort a job; only
// setup errors (a handler that cannot start at all) fail the job outright.
package jobs

import (
	"fmt"
	"time"

	"github.com/aristath/pulse/internal/sentiment"
)

// JobType represents the type of job
type JobType string

const (
	TypeHistoricalBackfill   JobType = "HISTORICAL_BACKFILL"
	TypeIndexRecalculation   JobType = "INDEX_RECALCULATION"
	TypeDataValidation       JobType = "DATA_VALIDATION"
	TypeBulkReportGeneration JobType = "BULK_REPORT_GENERATION"
)

// KnownTypes lists all registered job types.
func KnownTypes() []JobType {
	return []JobType{
		TypeHistoricalBackfill,
		TypeIndexRecalculation,
		TypeDataValidation,
		TypeBulkReportGeneration,
	}
}

// IsKnownType reports whether t is one of the supported job types.
func IsKnownType(t JobType) bool {
	for _, known := range KnownTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// allowedTransitions is the job state machine.
// PENDING -> RUNNING -> {COMPLETED, FAILED}, RUNNING <-> PAUSED,
// PAUSED -> FAILED (cancellation of a paused job). Terminal states are final.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusPaused},
	StatusPaused:  {StatusRunning, StatusFailed},
}

// CanTransition reports whether the edge from -> to is in the allowed set.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}

// Priority represents job priority
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority converts a priority name to a Priority.
// An empty name defaults to NORMAL.
func ParsePriority(name string) (Priority, error) {
	switch name {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL", "":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", name)
	}
}

// DateRange is an inclusive calendar date range.
type DateRange struct {
	StartDate string `json:"startDate"` // ISO date (YYYY-MM-DD)
	EndDate   string `json:"endDate"`
}

// Days returns the number of calendar days in the range, inclusive.
func (dr DateRange) Days() (int, error) {
	start, end, err := dr.parse()
	if err != nil {
		return 0, err
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// Each calls fn for every date in the range, in ascending order.
// Iteration stops early when fn returns false.
func (dr DateRange) Each(fn func(date string) bool) error {
	start, end, err := dr.parse()
	if err != nil {
		return err
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !fn(d.Format("2006-01-02")) {
			return nil
		}
	}
	return nil
}

func (dr DateRange) parse() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", dr.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", dr.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", dr.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", dr.EndDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s before start date %s", dr.EndDate, dr.StartDate)
	}
	return start, end, nil
}

// Validation levels for DATA_VALIDATION jobs.
const (
	ValidationBasic         = "BASIC"
	ValidationComprehensive = "COMPREHENSIVE"
)

// Parameters is the type-specific job payload.
type Parameters struct {
	DateRange          *DateRange         `json:"dateRange,omitempty"`
	Components         []string           `json:"components,omitempty"`
	OverwriteExisting  bool               `json:"overwriteExisting,omitempty"`
	ValidationLevel    string             `json:"validationLevel,omitempty"`
	ProcessingStrategy string             `json:"processingStrategy,omitempty"`
	ChunkSize          int                `json:"chunkSize,omitempty"`
	Priority           string             `json:"priority,omitempty"`
	NewWeights         *sentiment.Weights `json:"newWeights,omitempty"`
}

// Metadata is free-form submitter-provided context.
type Metadata struct {
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}

// Job is one queued, executing, or finished unit of batch work.
type Job struct {
	ID                 string     `json:"jobId"`
	Type               JobType    `json:"type"`
	Status             Status     `json:"status"`
	Priority           Priority   `json:"priority"`
	Parameters         Parameters `json:"parameters"`
	Metadata           Metadata   `json:"metadata"`
	TotalItems         int        `json:"totalItems"`
	ProcessedItems     int        `json:"processedItems"`
	FailedItems        int        `json:"failedItems"`
	ProgressPercentage float64    `json:"progressPercentage"`
	CurrentUnit        string     `json:"currentUnit,omitempty"`
	EstimatedDuration  int        `json:"estimatedDuration"` // seconds
	CreatedBy          string     `json:"createdBy"`
	CreatedAt          time.Time  `json:"createdAt"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// LogLevel is the severity of a job log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// JobLog is one append-only event for a job.
type JobLog struct {
	ID        int64          `json:"id"`
	JobID     string         `json:"jobId"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// secondsPerUnit is the deterministic per-unit duration estimate by job type.
var secondsPerUnit = map[JobType]float64{
	TypeHistoricalBackfill:   2.0,
	TypeIndexRecalculation:   1.0,
	TypeDataValidation:       0.2,
	TypeBulkReportGeneration: 30.0,
}

// EstimateDuration returns the deterministic duration estimate in seconds
// for a job of the given type over totalItems units.
func EstimateDuration(t JobType, totalItems int) int {
	perUnit, ok := secondsPerUnit[t]
	if !ok {
		perUnit = 1.0
	}
	seconds := int(perUnit * float64(totalItems))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
