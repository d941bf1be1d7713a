package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/jobs"
)

// JobHandlers serves the job submission, status and control endpoints.
type JobHandlers struct {
	service *jobs.Service
	log     zerolog.Logger
}

// NewJobHandlers creates job API handlers.
func NewJobHandlers(service *jobs.Service, log zerolog.Logger) *JobHandlers {
	return &JobHandlers{
		service: service,
		log:     log.With().Str("component", "job_handlers").Logger(),
	}
}

// HandleSubmit handles POST /api/jobs.
func (h *JobHandlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	createdBy := r.Header.Get("X-User")
	if createdBy == "" {
		createdBy = "api"
	}

	resp, err := h.service.Submit(req, createdBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// HandleList handles GET /api/jobs.
func (h *JobHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := jobs.ListFilter{
		Status: jobs.Status(r.URL.Query().Get("status")),
		Type:   jobs.JobType(r.URL.Query().Get("type")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	list, err := h.service.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

// HandleTypes handles GET /api/jobs/types.
func (h *JobHandlers) HandleTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": jobs.KnownTypes()})
}

// HandleStatus handles GET /api/jobs/{jobID}.
func (h *JobHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleLogs handles GET /api/jobs/{jobID}/logs.
func (h *JobHandlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.Logs(chi.URLParam(r, "jobID"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// HandleControl returns a handler for POST /api/jobs/{jobID}/{action}.
func (h *JobHandlers) HandleControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.service.Control(chi.URLParam(r, "jobID"), action)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
