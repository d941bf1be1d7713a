package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/events"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/sentiment"
)

// testAPI mounts the job and sentiment handlers on a bare router, backed
// by real repositories over temp-file databases.
func testAPI(t *testing.T) (*chi.Mux, *sentiment.Repository) {
	t.Helper()

	open := func(name string) *database.DB {
		db, err := database.New(database.Config{
			Path:    filepath.Join(t.TempDir(), name+".db"),
			Profile: database.ProfileStandard,
			Name:    name,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, db.Migrate())
		return db
	}

	jobsDB := open("jobs")
	records := sentiment.NewRepository(open("sentiment").Conn(), zerolog.Nop())

	logs := jobs.NewLogRepository(jobsDB.Conn(), zerolog.Nop())
	store := jobs.NewStore(jobsDB.Conn(), logs, zerolog.Nop())
	service := jobs.NewService(store, logs, jobs.NewResultRepository(jobsDB.Conn()),
		jobs.NewDispatcher(jobsDB.Conn()), events.NewBus(zerolog.Nop()), records, zerolog.Nop())

	jobHandlers := NewJobHandlers(service, zerolog.Nop())
	sentimentHandlers := NewSentimentHandlers(records, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobHandlers.HandleSubmit)
			r.Get("/", jobHandlers.HandleList)
			r.Get("/types", jobHandlers.HandleTypes)
			r.Get("/{jobID}", jobHandlers.HandleStatus)
			r.Post("/{jobID}/pause", jobHandlers.HandleControl(jobs.ActionPause))
		})
		r.Route("/sentiment", func(r chi.Router) {
			r.Get("/latest", sentimentHandlers.HandleLatest)
			r.Get("/history", sentimentHandlers.HandleHistory)
			r.Get("/{date}", sentimentHandlers.HandleByDate)
		})
	})
	return router, records
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestSubmitAndFetchJob(t *testing.T) {
	router, _ := testAPI(t)

	body := `{
		"type": "HISTORICAL_BACKFILL",
		"parameters": {"dateRange": {"startDate": "2024-01-01", "endDate": "2024-01-05"}}
	}`
	rec, payload := doJSON(t, router, http.MethodPost, "/api/jobs/", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobID, _ := payload["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "PENDING", payload["status"])

	rec, payload = doJSON(t, router, http.MethodGet, "/api/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, payload["jobId"])

	rec, payload = doJSON(t, router, http.MethodGet, "/api/jobs/?status=PENDING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["count"])
}

func TestSubmitValidationMapsTo400(t *testing.T) {
	router, _ := testAPI(t)

	rec, payload := doJSON(t, router, http.MethodPost, "/api/jobs/", `{"type": "NO_SUCH_TYPE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, payload["error"], "type")
}

func TestUnknownJobMapsTo404(t *testing.T) {
	router, _ := testAPI(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidTransitionMapsTo409(t *testing.T) {
	router, _ := testAPI(t)

	body := `{
		"type": "HISTORICAL_BACKFILL",
		"parameters": {"dateRange": {"startDate": "2024-01-01", "endDate": "2024-01-05"}}
	}`
	rec, payload := doJSON(t, router, http.MethodPost, "/api/jobs/", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := payload["jobId"].(string)

	// Pausing a job that never started is a state conflict.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/jobs/"+jobID+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobTypes(t *testing.T) {
	router, _ := testAPI(t)

	rec, payload := doJSON(t, router, http.MethodGet, "/api/jobs/types", "")
	require.Equal(t, http.StatusOK, rec.Code)

	types, ok := payload["types"].([]any)
	require.True(t, ok)
	assert.Len(t, types, 4)
}

func TestSentimentEndpoints(t *testing.T) {
	router, records := testAPI(t)

	t.Run("latest empty", func(t *testing.T) {
		rec, _ := doJSON(t, router, http.MethodGet, "/api/sentiment/latest", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	for _, seed := range []struct {
		date  string
		value int
	}{
		{"2024-01-01", 30},
		{"2024-01-02", 62},
	} {
		require.NoError(t, records.Upsert(sentiment.Record{
			Date:       seed.date,
			Value:      seed.value,
			Level:      sentiment.ClassifyLevel(seed.value),
			Confidence: 80,
			Components: sentiment.Components{Momentum: 50, Sentiment: 50, PutCall: 50, Volatility: 50, SafeHaven: 50},
			UpdatedAt:  time.Now(),
		}))
	}

	t.Run("latest", func(t *testing.T) {
		rec, payload := doJSON(t, router, http.MethodGet, "/api/sentiment/latest", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2024-01-02", payload["date"])
		assert.Equal(t, float64(62), payload["value"])
		assert.Equal(t, "GREED", payload["level"])
	})

	t.Run("by date", func(t *testing.T) {
		rec, payload := doJSON(t, router, http.MethodGet, "/api/sentiment/2024-01-01", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(30), payload["value"])

		rec, _ = doJSON(t, router, http.MethodGet, "/api/sentiment/2024-03-01", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		rec, payload := doJSON(t, router, http.MethodGet, "/api/sentiment/history?startDate=2024-01-01&endDate=2024-01-31", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), payload["count"])
	})
}
