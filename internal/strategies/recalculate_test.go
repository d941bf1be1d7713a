package strategies

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

func TestRecalcRequiresDateRange(t *testing.T) {
	f := newFixture(t)
	handler := NewRecalcHandler(f.engine, f.records, nil, zerolog.Nop())
	job, tracker := f.runningJob(t, jobs.TypeIndexRecalculation, jobs.Parameters{})

	_, err := handler.Execute(context.Background(), job, tracker)
	var setup *jobs.SetupError
	assert.ErrorAs(t, err, &setup)
}

func TestRecalcSameWeightsChangesNothing(t *testing.T) {
	f := newFixture(t)
	handler := NewRecalcHandler(f.engine, f.records, nil, zerolog.Nop())
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		f.seedRecord(t, date, 60)
	}

	job, tracker := f.runningJob(t, jobs.TypeIndexRecalculation, rangeParams("2024-01-01", "2024-01-03"))
	result, err := handler.Execute(context.Background(), job, tracker)
	require.NoError(t, err)

	rr := result.(*RecalcResult)
	assert.Equal(t, 3, rr.TotalRecalculated)
	assert.Equal(t, 0, rr.Summary.ChangedDates)
	assert.Empty(t, rr.Changes)
	assert.Equal(t, 0.0, rr.Summary.AvgChange)
}

func TestRecalcWithNewWeights(t *testing.T) {
	f := newFixture(t)
	handler := NewRecalcHandler(f.engine, f.records, nil, zerolog.Nop())

	// Skewed components: default weights score this 50, momentum-heavy
	// weights score it 65.
	require.NoError(t, f.records.Upsert(sentiment.Record{
		Date:       "2024-01-01",
		Value:      50,
		Level:      sentiment.LevelNeutral,
		Confidence: 80,
		Components: sentiment.Components{Momentum: 80, Sentiment: 20, PutCall: 50, Volatility: 50, SafeHaven: 50},
		UpdatedAt:  time.Now(),
	}))

	params := rangeParams("2024-01-01", "2024-01-01")
	params.NewWeights = &sentiment.Weights{Momentum: 0.6, Sentiment: 0.1, PutCall: 0.1, Volatility: 0.1, SafeHaven: 0.1}
	job, tracker := f.runningJob(t, jobs.TypeIndexRecalculation, params)

	result, err := handler.Execute(context.Background(), job, tracker)
	require.NoError(t, err)

	rr := result.(*RecalcResult)
	assert.Equal(t, 1, rr.Summary.ChangedDates)
	require.Len(t, rr.Changes, 1)
	assert.Equal(t, "2024-01-01", rr.Changes[0].Date)
	assert.Equal(t, 50, rr.Changes[0].OldValue)
	assert.Equal(t, 65, rr.Changes[0].NewValue)
	assert.Equal(t, 15, rr.Changes[0].Difference)
	assert.Equal(t, 15, rr.Summary.MaxChange)
	assert.InDelta(t, 15.0, rr.Summary.AvgChange, 1e-9)

	// The stored record was rewritten with the new value and level.
	rec, err := f.records.Get("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 65, rec.Value)
	assert.Equal(t, sentiment.LevelGreed, rec.Level)
}

func TestRecalcResultPayloadKeys(t *testing.T) {
	payload, err := json.Marshal(&RecalcResult{
		TotalRecalculated: 2,
		Changes:           []RecalcChange{{Date: "2024-01-01", OldValue: 50, NewValue: 65, Difference: 15}},
		Summary:           RecalcSummary{AvgChange: 15, MaxChange: 15, ChangedDates: 1},
	})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.Contains(t, doc, "totalRecalculated")
	assert.Contains(t, doc, "changes")

	summary, ok := doc["summary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, summary, "avgChange")
	assert.Contains(t, summary, "maxChange")
	assert.Contains(t, summary, "changedDates")
}

func TestRecalcRejectsInvalidWeights(t *testing.T) {
	f := newFixture(t)
	handler := NewRecalcHandler(f.engine, f.records, nil, zerolog.Nop())

	params := rangeParams("2024-01-01", "2024-01-31")
	params.NewWeights = &sentiment.Weights{Momentum: 0.97}
	job, tracker := f.runningJob(t, jobs.TypeIndexRecalculation, params)

	_, err := handler.Execute(context.Background(), job, tracker)
	var setup *jobs.SetupError
	require.ErrorAs(t, err, &setup)

	var cfgErr *sentiment.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRecalcOnlyTouchesRange(t *testing.T) {
	f := newFixture(t)
	handler := NewRecalcHandler(f.engine, f.records, nil, zerolog.Nop())

	require.NoError(t, f.records.Upsert(sentiment.Record{
		Date:       "2024-01-01",
		Value:      50,
		Level:      sentiment.LevelNeutral,
		Components: sentiment.Components{Momentum: 80, Sentiment: 20, PutCall: 50, Volatility: 50, SafeHaven: 50},
		UpdatedAt:  time.Now(),
	}))
	require.NoError(t, f.records.Upsert(sentiment.Record{
		Date:       "2024-02-01",
		Value:      50,
		Level:      sentiment.LevelNeutral,
		Components: sentiment.Components{Momentum: 80, Sentiment: 20, PutCall: 50, Volatility: 50, SafeHaven: 50},
		UpdatedAt:  time.Now(),
	}))

	params := rangeParams("2024-01-01", "2024-01-31")
	params.NewWeights = &sentiment.Weights{Momentum: 0.6, Sentiment: 0.1, PutCall: 0.1, Volatility: 0.1, SafeHaven: 0.1}
	job, tracker := f.runningJob(t, jobs.TypeIndexRecalculation, params)

	result, err := handler.Execute(context.Background(), job, tracker)
	require.NoError(t, err)
	assert.Equal(t, 1, result.(*RecalcResult).TotalRecalculated)

	outside, err := f.records.Get("2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, 50, outside.Value)
}
