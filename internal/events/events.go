// Package events provides the in-process event bus used for job lifecycle
// and progress notifications. Events are consumed by the SSE stream endpoint.
package events

import "time"

// EventType identifies a kind of event on the bus.
type EventType string

const (
	JobCreated       EventType = "JobCreated"
	JobStarted       EventType = "JobStarted"
	JobProgress      EventType = "JobProgress"
	JobCompleted     EventType = "JobCompleted"
	JobFailed        EventType = "JobFailed"
	JobPaused        EventType = "JobPaused"
	SentimentUpdated EventType = "SentimentUpdated"
)

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Event is a published event with its envelope.
type Event struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// JobStatusData contains data for job lifecycle events
// (JobCreated, JobStarted, JobCompleted, JobFailed, JobPaused).
type JobStatusData struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// EventType returns the event type for JobStatusData based on the status.
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "RUNNING":
		return JobStarted
	case "COMPLETED":
		return JobCompleted
	case "FAILED":
		return JobFailed
	case "PAUSED":
		return JobPaused
	default:
		return JobCreated
	}
}

// JobProgressData contains data for JobProgress events.
type JobProgressData struct {
	JobID       string  `json:"job_id"`
	JobType     string  `json:"job_type"`
	Processed   int     `json:"processed"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
	CurrentUnit string  `json:"current_unit,omitempty"`
}

// EventType returns the event type for JobProgressData.
func (d *JobProgressData) EventType() EventType {
	return JobProgress
}

// SentimentUpdatedData contains data for SentimentUpdated events.
type SentimentUpdatedData struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
	Level string `json:"level"`
}

// EventType returns the event type for SentimentUpdatedData.
func (d *SentimentUpdatedData) EventType() EventType {
	return SentimentUpdated
}
