package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/jobs"
)

// SystemHandlers serves health and diagnostics endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	jobsDB      *database.DB
	sentimentDB *database.DB
	cacheDB     *database.DB
	service     *jobs.Service
	startedAt   time.Time
}

// NewSystemHandlers creates system API handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, jobsDB, sentimentDB, cacheDB *database.DB, service *jobs.Service) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		jobsDB:      jobsDB,
		sentimentDB: sentimentDB,
		cacheDB:     cacheDB,
		service:     service,
		startedAt:   time.Now(),
	}
}

// HandleLiveness handles GET /health: a bare liveness probe.
func (h *SystemHandlers) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHealth handles GET /api/system/health: database pings plus host
// resource usage.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	databases := map[string]string{
		"jobs":      h.pingStatus(ctx, h.jobsDB),
		"sentiment": h.pingStatus(ctx, h.sentimentDB),
		"cache":     h.pingStatus(ctx, h.cacheDB),
	}

	healthy := true
	for _, status := range databases {
		if status != "ok" {
			healthy = false
		}
	}

	resp := map[string]any{
		"status":        "healthy",
		"uptimeSeconds": int(time.Since(h.startedAt).Seconds()),
		"databases":     databases,
		"resources":     h.resourceUsage(),
	}
	if depth, err := h.service.QueueDepth(); err == nil {
		resp["queuedJobs"] = depth
	}

	code := http.StatusOK
	if !healthy {
		resp["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// HandleDatabaseStats handles GET /api/system/database/stats.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}
	for name, db := range map[string]*database.DB{
		"jobs":      h.jobsDB,
		"sentiment": h.sentimentDB,
		"cache":     h.cacheDB,
	} {
		if db == nil {
			continue
		}
		s := db.Conn().Stats()
		stats[name] = map[string]any{
			"openConnections": s.OpenConnections,
			"inUse":           s.InUse,
			"idle":            s.Idle,
			"waitCount":       s.WaitCount,
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// pingStatus reports one database's health as a short status string.
// QuickCheck only pings; the full integrity check is too expensive for a
// health endpoint.
func (h *SystemHandlers) pingStatus(ctx context.Context, db *database.DB) string {
	if db == nil {
		return "missing"
	}
	if err := db.QuickCheck(ctx); err != nil {
		h.log.Warn().Err(err).Str("database", db.Name()).Msg("database health check failed")
		return "error"
	}
	return "ok"
}

// resourceUsage samples host CPU, memory and disk via gopsutil.
// Sampling failures degrade to partial output, never an error response.
func (h *SystemHandlers) resourceUsage() map[string]any {
	usage := map[string]any{}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		usage["cpuPercent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage["memoryPercent"] = vm.UsedPercent
		usage["memoryTotalMB"] = vm.Total / 1024 / 1024
	}
	if du, err := disk.Usage(h.dataDir); err == nil {
		usage["diskPercent"] = du.UsedPercent
		usage["diskFreeMB"] = du.Free / 1024 / 1024
	}

	return usage
}
