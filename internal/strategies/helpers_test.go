package strategies

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

// fixture wires a strategy test against fresh temp databases.
type fixture struct {
	records       *sentiment.Repository
	sentimentConn *sql.DB
	store         *jobs.Store
	logs          *jobs.LogRepository
	engine        *sentiment.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	open := func(name string) *sql.DB {
		db, err := database.New(database.Config{
			Path:    filepath.Join(t.TempDir(), name+".db"),
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, db.Migrate())
		return db.Conn()
	}

	jobsConn := open("jobs")
	logs := jobs.NewLogRepository(jobsConn, zerolog.Nop())

	engine, err := sentiment.NewEngine(sentiment.DefaultWeights())
	require.NoError(t, err)

	sentimentConn := open("sentiment")
	return &fixture{
		records:       sentiment.NewRepository(sentimentConn, zerolog.Nop()),
		sentimentConn: sentimentConn,
		store:         jobs.NewStore(jobsConn, logs, zerolog.Nop()),
		logs:          logs,
		engine:        engine,
	}
}

// runningJob creates a claimed RUNNING job plus its tracker.
func (f *fixture) runningJob(t *testing.T, jobType jobs.JobType, params jobs.Parameters) (*jobs.Job, *jobs.Tracker) {
	t.Helper()

	job := jobs.NewJob(jobType, params, jobs.Metadata{}, "tester")
	require.NoError(t, f.store.Create(job))

	claimed, ok, err := f.store.Claim(job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	return claimed, jobs.NewTracker(f.store, f.logs, nil, zerolog.Nop(), claimed)
}

// seedRecord stores a record with uniform components producing the given value.
func (f *fixture) seedRecord(t *testing.T, date string, value int) {
	t.Helper()

	v := float64(value)
	require.NoError(t, f.records.Upsert(sentiment.Record{
		Date:       date,
		Value:      value,
		Level:      sentiment.ClassifyLevel(value),
		Confidence: 80,
		Components: sentiment.Components{Momentum: v, Sentiment: v, PutCall: v, Volatility: v, SafeHaven: v},
		UpdatedAt:  time.Now(),
	}))
}

func rangeParams(start, end string) jobs.Parameters {
	return jobs.Parameters{DateRange: &jobs.DateRange{StartDate: start, EndDate: end}}
}
