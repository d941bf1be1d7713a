package strategies

import (
	"context"
	"encoding/csv"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/reports"
)

func TestReportExportsRecords(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	handler := NewReportHandler(f.records, reports.NewGenerator(dir, zerolog.Nop()), nil, zerolog.Nop())

	f.seedRecord(t, "2024-01-01", 20)
	f.seedRecord(t, "2024-01-02", 50)
	f.seedRecord(t, "2024-01-03", 80)

	job, tracker := f.runningJob(t, jobs.TypeBulkReportGeneration, jobs.Parameters{})
	result, err := handler.Execute(context.Background(), job, tracker)
	require.NoError(t, err)

	rr := result.(*ReportResult)
	assert.Equal(t, 3, rr.Records)
	assert.Empty(t, rr.S3Key)
	require.NotNil(t, rr.Stats)
	assert.Equal(t, 20, rr.Stats.MinValue)
	assert.Equal(t, 80, rr.Stats.MaxValue)
	assert.InDelta(t, 50.0, rr.Stats.MeanValue, 1e-9)

	// The artifact is a parsable CSV with a header plus one row per record.
	file, err := os.Open(rr.ArtifactPath)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "date", rows[0][0])
	assert.Equal(t, "2024-01-01", rows[1][0])
	assert.Equal(t, "20", rows[1][1])

	// The whole export is one unit.
	got, err := f.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ProcessedItems)
}

func TestReportEmptyTable(t *testing.T) {
	f := newFixture(t)
	handler := NewReportHandler(f.records, reports.NewGenerator(t.TempDir(), zerolog.Nop()), nil, zerolog.Nop())

	job, tracker := f.runningJob(t, jobs.TypeBulkReportGeneration, jobs.Parameters{})
	result, err := handler.Execute(context.Background(), job, tracker)
	require.NoError(t, err)

	rr := result.(*ReportResult)
	assert.Equal(t, 0, rr.Records)
	assert.FileExists(t, rr.ArtifactPath)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, 0, reports.Summarize(nil).Records)
}
