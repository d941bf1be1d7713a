// Package strategies implements the job handlers for each job type.
// Each handler walks its units (typically calendar dates), absorbing
// per-unit failures into counters and checking for pause/cancel at every
// unit boundary.
package strategies

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/events"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
	"github.com/aristath/pulse/internal/signals"
)

// BackfillResult is the result payload of a HISTORICAL_BACKFILL job.
type BackfillResult struct {
	TotalDays        int      `json:"totalDays"`
	ProcessedDays    int      `json:"processedDays"`
	FailedDays       int      `json:"failedDays"`
	DuplicateSkipped int      `json:"duplicateSkipped"`
	DataGaps         []string `json:"dataGaps,omitempty"`
	Summary          string   `json:"summary"`
}

// BackfillHandler computes and stores sentiment records for every date in
// a range. Dates with existing records are skipped unless the job asks to
// overwrite; dates the signal source has no data for are counted as
// failed and listed as data gaps.
type BackfillHandler struct {
	engine  *sentiment.Engine
	records *sentiment.Repository
	source  signals.Source
	bus     *events.Bus
	log     zerolog.Logger
}

// NewBackfillHandler creates the HISTORICAL_BACKFILL handler.
func NewBackfillHandler(engine *sentiment.Engine, records *sentiment.Repository, source signals.Source, bus *events.Bus, log zerolog.Logger) *BackfillHandler {
	return &BackfillHandler{
		engine:  engine,
		records: records,
		source:  source,
		bus:     bus,
		log:     log.With().Str("strategy", "backfill").Logger(),
	}
}

// Type returns the job type this handler serves.
func (h *BackfillHandler) Type() jobs.JobType {
	return jobs.TypeHistoricalBackfill
}

// Execute runs the backfill day by day.
func (h *BackfillHandler) Execute(ctx context.Context, job *jobs.Job, tracker *jobs.Tracker) (any, error) {
	dates, err := datesFromRange(job.Parameters.DateRange)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{TotalDays: len(dates)}
	chunk := reportInterval(job.Parameters.ChunkSize)

	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		halted, _, err := tracker.Halted()
		if err != nil {
			return nil, err
		}
		if halted {
			_ = h.report(tracker, result, date)
			return nil, jobs.ErrHalted
		}

		h.processDay(ctx, job, result, tracker, date)

		if (i+1)%chunk == 0 || i == len(dates)-1 {
			if err := h.report(tracker, result, date); err != nil {
				return nil, err
			}
		}
	}

	result.Summary = fmt.Sprintf("backfilled %d of %d days (%d skipped, %d failed)",
		result.ProcessedDays, result.TotalDays, result.DuplicateSkipped, result.FailedDays)
	return result, nil
}

// processDay handles one date. Every per-day failure, including a storage
// failure, is absorbed into the counters; the loop never aborts on a unit.
func (h *BackfillHandler) processDay(ctx context.Context, job *jobs.Job, result *BackfillResult, tracker *jobs.Tracker, date string) {
	if !job.Parameters.OverwriteExisting {
		exists, err := h.records.Exists(date)
		if err != nil {
			h.failDay(result, tracker, date, "failed to check existing record", err)
			return
		}
		if exists {
			result.DuplicateSkipped++
			return
		}
	}

	sig, err := h.source.Signals(ctx, date)
	if err != nil {
		h.failDay(result, tracker, date, "no signal data for date", err)
		return
	}

	rec := h.engine.Compute(date, sig.Components, sig.Quality)
	if err := h.records.Upsert(rec); err != nil {
		h.failDay(result, tracker, date, "failed to store record", err)
		return
	}
	result.ProcessedDays++

	if h.bus != nil {
		h.bus.Emit("backfill", &events.SentimentUpdatedData{
			Date:  rec.Date,
			Value: rec.Value,
			Level: string(rec.Level),
		})
	}
}

// failDay counts one date as failed and records it as a data gap.
func (h *BackfillHandler) failDay(result *BackfillResult, tracker *jobs.Tracker, date, msg string, cause error) {
	result.FailedDays++
	result.DataGaps = append(result.DataGaps, date)
	unitErr := &jobs.UnitError{Unit: date, Cause: cause}
	tracker.Log(jobs.LogError, msg, map[string]any{
		"date":  date,
		"error": unitErr.Error(),
	})
}

func (h *BackfillHandler) report(tracker *jobs.Tracker, result *BackfillResult, date string) error {
	// Skipped duplicates count as processed: the date's record exists.
	return tracker.Report(result.ProcessedDays+result.DuplicateSkipped, result.FailedDays, date)
}

// datesFromRange expands a required date range into its dates.
func datesFromRange(dr *jobs.DateRange) ([]string, error) {
	if dr == nil {
		return nil, jobs.NewSetupError("date range is required", nil)
	}

	days, err := dr.Days()
	if err != nil {
		return nil, jobs.NewSetupError("invalid date range", err)
	}

	dates := make([]string, 0, days)
	_ = dr.Each(func(date string) bool {
		dates = append(dates, date)
		return true
	})
	return dates, nil
}

// reportInterval clamps the chunk size into a usable progress interval.
func reportInterval(chunkSize int) int {
	if chunkSize < 1 {
		return 1
	}
	return chunkSize
}
