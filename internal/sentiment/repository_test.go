package sentiment

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "sentiment.db"),
		Profile: database.ProfileStandard,
		Name:    "sentiment",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return db.Conn()
}

func testRecord(date string, value int) Record {
	return Record{
		Date:       date,
		Value:      value,
		Level:      ClassifyLevel(value),
		Confidence: 80,
		Components: Components{Momentum: 50, Sentiment: 50, PutCall: 50, Volatility: 50, SafeHaven: 50},
		UpdatedAt:  time.Now(),
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	rec, err := repo.Get("2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepositoryUpsert(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Upsert(testRecord("2024-01-01", 30)))

	rec, err := repo.Get("2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 30, rec.Value)
	assert.Equal(t, LevelFear, rec.Level)

	// Second upsert for the same date overwrites.
	require.NoError(t, repo.Upsert(testRecord("2024-01-01", 80)))

	rec, err = repo.Get("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 80, rec.Value)
	assert.Equal(t, LevelExtremeGreed, rec.Level)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepositoryExists(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	exists, err := repo.Exists("2024-01-01")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Upsert(testRecord("2024-01-01", 50)))

	exists, err = repo.Exists("2024-01-01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepositoryRange(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"} {
		require.NoError(t, repo.Upsert(testRecord(date, 50)))
	}

	t.Run("bounded range is inclusive and ordered", func(t *testing.T) {
		records, err := repo.Range("2024-01-02", "2024-01-03")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "2024-01-02", records[0].Date)
		assert.Equal(t, "2024-01-03", records[1].Date)
	})

	t.Run("empty bounds are open-ended", func(t *testing.T) {
		records, err := repo.Range("", "")
		require.NoError(t, err)
		assert.Len(t, records, 4)

		records, err = repo.Range("2024-01-03", "")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("count matches range", func(t *testing.T) {
		count, err := repo.CountRange("2024-01-02", "2024-01-04")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestRepositoryLatest(t *testing.T) {
	repo := NewRepository(newTestDB(t), zerolog.Nop())

	rec, err := repo.Latest()
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, repo.Upsert(testRecord("2024-01-05", 40)))
	require.NoError(t, repo.Upsert(testRecord("2024-01-10", 60)))
	require.NoError(t, repo.Upsert(testRecord("2024-01-07", 50)))

	rec, err = repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2024-01-10", rec.Date)
}
