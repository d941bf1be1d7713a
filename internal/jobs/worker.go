package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/pulse/internal/events"
)

// JobTimeout is the maximum duration a single job execution can run
// before being cancelled.
const JobTimeout = 2 * time.Hour

// DefaultPollInterval is the default worker tick interval.
const DefaultPollInterval = 5 * time.Second

// Worker polls the dispatcher on a fixed interval and processes one job
// per tick. Units within a job run strictly sequentially. RUNNING jobs
// with no in-flight execution (resumed from PAUSED, or orphaned by a
// process restart) are re-executed from the start; handlers are
// idempotent, so replaying committed units is safe. That recovery rule
// assumes a single worker owns the store.
type Worker struct {
	store      *Store
	logs       *LogRepository
	results    *ResultRepository
	dispatcher *Dispatcher
	registry   *Registry
	bus        *events.Bus
	log        zerolog.Logger
	interval   time.Duration
	timeout    time.Duration

	trigger chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	// Executions currently in flight, so a concurrent Tick never
	// re-enters a job this worker is already running.
	inflight map[string]struct{}
	mu       sync.Mutex
}

// WorkerConfig bundles the worker's collaborators.
type WorkerConfig struct {
	Store      *Store
	Logs       *LogRepository
	Results    *ResultRepository
	Dispatcher *Dispatcher
	Registry   *Registry
	Bus        *events.Bus
	Log        zerolog.Logger
	Interval   time.Duration // Poll interval (default 5s)
	Timeout    time.Duration // Per-job execution timeout (default 2h)
}

// NewWorker creates a new worker loop.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = JobTimeout
	}

	return &Worker{
		store:      cfg.Store,
		logs:       cfg.Logs,
		results:    cfg.Results,
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Registry,
		bus:        cfg.Bus,
		log:        cfg.Log.With().Str("component", "worker").Logger(),
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		trigger:    make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		inflight:   make(map[string]struct{}),
	}
}

// Run starts the worker loop. This blocks until Stop() is called.
func (w *Worker) Run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("worker started")

	for {
		select {
		case <-w.stop:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.Tick()
		case <-w.trigger:
			w.Tick()
		}
	}
}

// Stop stops the worker and waits for the current tick to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.stopped
}

// Trigger wakes up the worker without waiting for the next tick.
// Non-blocking; can be called from any goroutine.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// Trigger already pending
	}
}

// Tick processes at most one job: a RUNNING job awaiting execution if
// one exists, otherwise the dispatcher's next pending job. Exported so
// tests can drive the loop deterministically.
func (w *Worker) Tick() {
	if job := w.nextRunning(); job != nil {
		w.log.Info().Str("job", job.ID).Str("type", string(job.Type)).Msg("resuming job")
		w.execute(job)
		return
	}

	candidate, err := w.dispatcher.NextPending()
	if err != nil {
		w.log.Error().Err(err).Msg("failed to poll for pending jobs")
		return
	}
	if candidate == nil {
		return
	}

	job, claimed, err := w.store.Claim(candidate.ID)
	if err != nil {
		w.log.Error().Err(err).Str("job", candidate.ID).Msg("failed to claim job")
		return
	}
	if !claimed {
		// Another worker won the claim; try again next tick.
		return
	}

	if w.bus != nil {
		w.bus.Emit("worker", &events.JobStatusData{
			JobID:   job.ID,
			JobType: string(job.Type),
			Status:  string(StatusRunning),
		})
	}

	w.execute(job)
}

// execute runs the handler for a claimed (RUNNING) job and finalizes it.
func (w *Worker) execute(job *Job) {
	w.mu.Lock()
	w.inflight[job.ID] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, job.ID)
		w.mu.Unlock()
	}()

	started := time.Now()
	log := w.log.With().Str("job", job.ID).Str("type", string(job.Type)).Logger()

	handler := w.registry.Get(job.Type)
	if handler == nil {
		w.fail(job, fmt.Errorf("no handler registered for job type %s", job.Type))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	tracker := NewTracker(w.store, w.logs, w.bus, w.log, job)
	result, err := handler.Execute(ctx, job, tracker)

	if errors.Is(err, ErrHalted) {
		// The job was paused or cancelled underneath the handler; whoever
		// transitioned it already wrote the log entry.
		current, getErr := w.store.Get(job.ID)
		if getErr != nil {
			log.Error().Err(getErr).Msg("failed to re-read halted job")
			return
		}
		if current.Status == StatusPaused {
			log.Info().Msg("job paused at unit boundary")
		} else {
			log.Info().Str("status", string(current.Status)).Msg("job halted")
		}
		return
	}

	if err != nil {
		w.fail(job, err)
		log.Error().Err(err).Dur("duration", time.Since(started)).Msg("job failed")
		return
	}

	if result != nil {
		if saveErr := w.results.Save(job.ID, result); saveErr != nil {
			w.fail(job, fmt.Errorf("failed to store result: %w", saveErr))
			return
		}
	}

	if _, err := w.store.Transition(job.ID, StatusCompleted, ""); err != nil {
		log.Error().Err(err).Msg("failed to finalize completed job")
		return
	}

	if w.bus != nil {
		w.bus.Emit("worker", &events.JobStatusData{
			JobID:   job.ID,
			JobType: string(job.Type),
			Status:  string(StatusCompleted),
		})
	}

	log.Info().Dur("duration", time.Since(started)).Msg("job completed")
}

// fail transitions a job to FAILED and records the raw error message.
func (w *Worker) fail(job *Job, cause error) {
	if err := w.logs.Append(job.ID, LogError, cause.Error(), nil); err != nil {
		w.log.Warn().Err(err).Str("job", job.ID).Msg("failed to write failure log")
	}

	if _, err := w.store.Transition(job.ID, StatusFailed, cause.Error()); err != nil {
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			w.log.Error().Err(err).Str("job", job.ID).Msg("failed to transition job to FAILED")
		}
		// Already terminal (e.g. cancelled concurrently) - nothing to do.
		return
	}

	if w.bus != nil {
		w.bus.Emit("worker", &events.JobStatusData{
			JobID:   job.ID,
			JobType: string(job.Type),
			Status:  string(StatusFailed),
			Reason:  cause.Error(),
		})
	}
}

// nextRunning returns a RUNNING job with no in-flight execution, or nil.
// The set is derived from the store, not process memory: it covers jobs
// resumed through the control API after a restart as well as jobs a
// crashed worker left RUNNING.
func (w *Worker) nextRunning() *Job {
	running, err := w.store.List(ListFilter{Status: StatusRunning})
	if err != nil {
		w.log.Error().Err(err).Msg("failed to poll for running jobs")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range running {
		if _, busy := w.inflight[running[i].ID]; !busy {
			return &running[i]
		}
	}
	return nil
}
