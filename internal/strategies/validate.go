package strategies

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

// maxIssueEntries caps the per-record issue list in the result payload.
const maxIssueEntries = 100

// Validation rule names.
const (
	RuleValueRange       = "VALUE_RANGE"
	RuleComponentRange   = "COMPONENT_RANGE"
	RuleLevelConsistency = "LEVEL_CONSISTENCY"
	RuleConfidenceRange  = "CONFIDENCE_RANGE"
)

// ValidationIssue is one rule violation on one stored record.
type ValidationIssue struct {
	Date   string `json:"date"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// ValidationResult is the result payload of a DATA_VALIDATION job.
type ValidationResult struct {
	TotalRecords   int               `json:"totalRecords"`
	ValidRecords   int               `json:"validRecords"`
	InvalidRecords int               `json:"invalidRecords"`
	IssuesByRule   map[string]int    `json:"issuesByRule"`
	Issues         []ValidationIssue `json:"issues,omitempty"`
	Summary        string            `json:"summary"`
}

// ValidateHandler audits stored sentiment records against integrity
// rules. BASIC checks range constraints; COMPREHENSIVE additionally
// verifies level classification and confidence bounds. Validation is
// read-only: findings go into the result, records are never repaired.
type ValidateHandler struct {
	records *sentiment.Repository
	log     zerolog.Logger
}

// NewValidateHandler creates the DATA_VALIDATION handler.
func NewValidateHandler(records *sentiment.Repository, log zerolog.Logger) *ValidateHandler {
	return &ValidateHandler{
		records: records,
		log:     log.With().Str("strategy", "validate").Logger(),
	}
}

// Type returns the job type this handler serves.
func (h *ValidateHandler) Type() jobs.JobType {
	return jobs.TypeDataValidation
}

// Execute validates every stored record in the job's date range.
// A missing range means the whole table.
func (h *ValidateHandler) Execute(ctx context.Context, job *jobs.Job, tracker *jobs.Tracker) (any, error) {
	var start, end string
	if job.Parameters.DateRange != nil {
		start = job.Parameters.DateRange.StartDate
		end = job.Parameters.DateRange.EndDate
	}

	records, err := h.records.Range(start, end)
	if err != nil {
		return nil, jobs.NewSetupError("failed to load records", err)
	}

	level := job.Parameters.ValidationLevel
	if level == "" {
		level = jobs.ValidationBasic
	}

	result := &ValidationResult{
		TotalRecords: len(records),
		IssuesByRule: map[string]int{},
	}
	chunk := reportInterval(job.Parameters.ChunkSize)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		halted, _, err := tracker.Halted()
		if err != nil {
			return nil, err
		}
		if halted {
			// Invalid records are findings, not failed units.
			_ = tracker.Report(i, 0, rec.Date)
			return nil, jobs.ErrHalted
		}

		issues := checkRecord(rec, level)
		if len(issues) == 0 {
			result.ValidRecords++
		} else {
			result.InvalidRecords++
			for _, issue := range issues {
				result.IssuesByRule[issue.Rule]++
				if len(result.Issues) < maxIssueEntries {
					result.Issues = append(result.Issues, issue)
				}
			}
		}

		if (i+1)%chunk == 0 || i == len(records)-1 {
			if err := tracker.Report(i+1, 0, rec.Date); err != nil {
				return nil, err
			}
		}
	}

	result.Summary = fmt.Sprintf("validated %d records at %s level: %d valid, %d invalid",
		result.TotalRecords, level, result.ValidRecords, result.InvalidRecords)
	return result, nil
}

// checkRecord applies the integrity rules for the given validation level.
func checkRecord(rec sentiment.Record, level string) []ValidationIssue {
	var issues []ValidationIssue

	if rec.Value < 0 || rec.Value > 100 {
		issues = append(issues, ValidationIssue{
			Date:   rec.Date,
			Rule:   RuleValueRange,
			Detail: fmt.Sprintf("value %d out of range [0,100]", rec.Value),
		})
	}
	if !rec.Components.InRange() {
		issues = append(issues, ValidationIssue{
			Date:   rec.Date,
			Rule:   RuleComponentRange,
			Detail: "one or more components out of range [0,100]",
		})
	}

	if level == jobs.ValidationComprehensive {
		if expected := sentiment.ClassifyLevel(rec.Value); rec.Level != expected {
			issues = append(issues, ValidationIssue{
				Date:   rec.Date,
				Rule:   RuleLevelConsistency,
				Detail: fmt.Sprintf("level %s does not match value %d (expected %s)", rec.Level, rec.Value, expected),
			})
		}
		if rec.Confidence < 0 || rec.Confidence > 100 {
			issues = append(issues, ValidationIssue{
				Date:   rec.Date,
				Rule:   RuleConfidenceRange,
				Detail: fmt.Sprintf("confidence %.2f out of range [0,100]", rec.Confidence),
			})
		}
	}

	return issues
}
