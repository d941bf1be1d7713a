package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/sentiment"
)

// SentimentHandlers serves read access to computed sentiment records.
type SentimentHandlers struct {
	records *sentiment.Repository
	log     zerolog.Logger
}

// NewSentimentHandlers creates sentiment API handlers.
func NewSentimentHandlers(records *sentiment.Repository, log zerolog.Logger) *SentimentHandlers {
	return &SentimentHandlers{
		records: records,
		log:     log.With().Str("component", "sentiment_handlers").Logger(),
	}
}

// HandleLatest handles GET /api/sentiment/latest.
func (h *SentimentHandlers) HandleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, err := h.records.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no sentiment records")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory handles GET /api/sentiment/history?startDate=&endDate=.
func (h *SentimentHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")

	records, err := h.records.Range(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// HandleByDate handles GET /api/sentiment/{date}.
func (h *SentimentHandlers) HandleByDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	rec, err := h.records.Get(date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no sentiment record for "+date)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
