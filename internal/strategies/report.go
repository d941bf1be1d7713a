package strategies

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/reports"
	"github.com/aristath/pulse/internal/sentiment"
)

// ReportResult is the result payload of a BULK_REPORT_GENERATION job.
type ReportResult struct {
	Records      int              `json:"records"`
	ArtifactPath string           `json:"artifactPath"`
	S3Key        string           `json:"s3Key,omitempty"`
	Stats        *reports.Summary `json:"stats"`
	Summary      string           `json:"summary"`
}

// ReportHandler exports stored sentiment records as a CSV artifact and
// optionally uploads it. The whole export is a single unit of work: it
// either produces an artifact or fails outright.
type ReportHandler struct {
	records   *sentiment.Repository
	generator *reports.Generator
	uploader  *reports.Uploader // nil when upload is disabled
	log       zerolog.Logger
}

// NewReportHandler creates the BULK_REPORT_GENERATION handler.
func NewReportHandler(records *sentiment.Repository, generator *reports.Generator, uploader *reports.Uploader, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		records:   records,
		generator: generator,
		uploader:  uploader,
		log:       log.With().Str("strategy", "report").Logger(),
	}
}

// Type returns the job type this handler serves.
func (h *ReportHandler) Type() jobs.JobType {
	return jobs.TypeBulkReportGeneration
}

// Execute generates the report. A missing range exports the whole table.
func (h *ReportHandler) Execute(ctx context.Context, job *jobs.Job, tracker *jobs.Tracker) (any, error) {
	var start, end string
	if job.Parameters.DateRange != nil {
		start = job.Parameters.DateRange.StartDate
		end = job.Parameters.DateRange.EndDate
	}

	records, err := h.records.Range(start, end)
	if err != nil {
		return nil, jobs.NewSetupError("failed to load records", err)
	}

	halted, _, err := tracker.Halted()
	if err != nil {
		return nil, err
	}
	if halted {
		return nil, jobs.ErrHalted
	}

	path, stats, err := h.generator.Generate(job.ID, records)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}

	result := &ReportResult{
		Records:      len(records),
		ArtifactPath: path,
		Stats:        stats,
	}

	if h.uploader != nil {
		key, err := h.uploader.Upload(ctx, path)
		if err != nil {
			// The artifact exists locally; a failed upload is a finding,
			// not a job failure.
			tracker.Log(jobs.LogWarn, "report upload failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		} else {
			result.S3Key = key
		}
	}

	if err := tracker.Report(1, 0, "report"); err != nil {
		return nil, err
	}

	result.Summary = fmt.Sprintf("exported %d records to %s", len(records), path)
	return result, nil
}
