package strategies

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/pulse/internal/events"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

// maxChangeEntries caps the per-date change list in the result payload.
const maxChangeEntries = 100

// RecalcChange records one date whose value changed during recalculation.
type RecalcChange struct {
	Date       string `json:"date"`
	OldValue   int    `json:"oldValue"`
	NewValue   int    `json:"newValue"`
	Difference int    `json:"difference"`
}

// RecalcSummary aggregates the outcome of a recalculation run.
type RecalcSummary struct {
	AvgChange    float64 `json:"avgChange"`
	MaxChange    int     `json:"maxChange"`
	ChangedDates int     `json:"changedDates"`
}

// RecalcResult is the result payload of an INDEX_RECALCULATION job.
type RecalcResult struct {
	TotalRecalculated int            `json:"totalRecalculated"`
	FailedRecords     int            `json:"failedRecords"`
	Changes           []RecalcChange `json:"changes,omitempty"`
	Summary           RecalcSummary  `json:"summary"`
}

// RecalcHandler recomputes stored index values from their persisted
// components, optionally under a new weight configuration. Signal data is
// never re-fetched; only the weighted blend is redone.
type RecalcHandler struct {
	engine  *sentiment.Engine
	records *sentiment.Repository
	bus     *events.Bus
	log     zerolog.Logger
}

// NewRecalcHandler creates the INDEX_RECALCULATION handler.
func NewRecalcHandler(engine *sentiment.Engine, records *sentiment.Repository, bus *events.Bus, log zerolog.Logger) *RecalcHandler {
	return &RecalcHandler{
		engine:  engine,
		records: records,
		bus:     bus,
		log:     log.With().Str("strategy", "recalculate").Logger(),
	}
}

// Type returns the job type this handler serves.
func (h *RecalcHandler) Type() jobs.JobType {
	return jobs.TypeIndexRecalculation
}

// Execute recomputes every stored record in the job's date range.
func (h *RecalcHandler) Execute(ctx context.Context, job *jobs.Job, tracker *jobs.Tracker) (any, error) {
	if job.Parameters.DateRange == nil {
		return nil, jobs.NewSetupError("date range is required", nil)
	}

	engine := h.engine
	if job.Parameters.NewWeights != nil {
		replacement, err := sentiment.NewEngine(*job.Parameters.NewWeights)
		if err != nil {
			return nil, jobs.NewSetupError("invalid replacement weights", err)
		}
		engine = replacement
	}

	records, err := h.records.Range(job.Parameters.DateRange.StartDate, job.Parameters.DateRange.EndDate)
	if err != nil {
		return nil, jobs.NewSetupError("failed to load records", err)
	}

	result := &RecalcResult{TotalRecalculated: len(records)}
	chunk := reportInterval(job.Parameters.ChunkSize)
	var differences []float64
	processed := 0

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		halted, _, err := tracker.Halted()
		if err != nil {
			return nil, err
		}
		if halted {
			_ = tracker.Report(processed, result.FailedRecords, rec.Date)
			return nil, jobs.ErrHalted
		}

		newValue := engine.Value(rec.Components)
		if newValue != rec.Value {
			diff := newValue - rec.Value
			if abs(diff) > result.Summary.MaxChange {
				result.Summary.MaxChange = abs(diff)
			}
			differences = append(differences, math.Abs(float64(diff)))

			if len(result.Changes) < maxChangeEntries {
				result.Changes = append(result.Changes, RecalcChange{
					Date:       rec.Date,
					OldValue:   rec.Value,
					NewValue:   newValue,
					Difference: diff,
				})
			}

			updated := engine.Compute(rec.Date, rec.Components, rec.Confidence)
			if err := h.records.Upsert(updated); err != nil {
				result.FailedRecords++
				tracker.Log(jobs.LogError, "failed to store recalculated record", map[string]any{
					"date":  rec.Date,
					"error": err.Error(),
				})
			} else {
				result.Summary.ChangedDates++
				if h.bus != nil {
					h.bus.Emit("recalculate", &events.SentimentUpdatedData{
						Date:  updated.Date,
						Value: updated.Value,
						Level: string(updated.Level),
					})
				}
			}
		}
		processed++

		if (i+1)%chunk == 0 || i == len(records)-1 {
			if err := tracker.Report(processed, result.FailedRecords, rec.Date); err != nil {
				return nil, err
			}
		}
	}

	if len(differences) > 0 {
		result.Summary.AvgChange = stat.Mean(differences, nil)
	}
	h.log.Info().
		Int("records", result.TotalRecalculated).
		Int("changed", result.Summary.ChangedDates).
		Float64("avg_change", result.Summary.AvgChange).
		Int("max_change", result.Summary.MaxChange).
		Msg("recalculation finished")
	return result, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
