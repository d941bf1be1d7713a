// Package triggers submits scheduled jobs. Triggers are thin glue over the
// job service: a fired trigger is an ordinary submission, subject to the
// same validation and queueing as any API caller.
package triggers

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/config"
	"github.com/aristath/pulse/internal/jobs"
)

// recalcLookbackDays is the range the daily recalculation covers.
const recalcLookbackDays = 30

// Scheduler runs cron-scheduled job submissions.
type Scheduler struct {
	cron    *cron.Cron
	service *jobs.Service
	cfg     *config.TriggersConfig
	log     zerolog.Logger
}

// NewScheduler creates a trigger scheduler. Returns nil when triggers are
// disabled.
func NewScheduler(service *jobs.Service, cfg *config.TriggersConfig, log zerolog.Logger) *Scheduler {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &Scheduler{
		cron:    cron.New(),
		service: service,
		cfg:     cfg,
		log:     log.With().Str("component", "triggers").Logger(),
	}
}

// Start registers the schedules and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.DailyRecalcSpec, s.submitDailyRecalc)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("daily_recalc", s.cfg.DailyRecalcSpec).Msg("trigger scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running submissions.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("trigger scheduler stopped")
}

// submitDailyRecalc submits an INDEX_RECALCULATION job over the recent
// window. Submission failures are logged, never fatal; the next firing
// tries again.
func (s *Scheduler) submitDailyRecalc() {
	now := time.Now()
	req := jobs.SubmitRequest{
		Type: jobs.TypeIndexRecalculation,
		Parameters: jobs.Parameters{
			DateRange: &jobs.DateRange{
				StartDate: now.AddDate(0, 0, -recalcLookbackDays).Format("2006-01-02"),
				EndDate:   now.Format("2006-01-02"),
			},
		},
		Metadata: jobs.Metadata{
			Description: "scheduled daily index recalculation",
			Tags:        []string{"scheduled"},
		},
	}

	resp, err := s.service.Submit(req, "scheduler")
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled recalculation submission failed")
		return
	}
	s.log.Info().Str("job", resp.JobID).Msg("scheduled recalculation submitted")
}
