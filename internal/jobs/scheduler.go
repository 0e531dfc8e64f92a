package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shamayhq/nesach/internal/defra"
)

// ErrManagerRequired is returned by operations that need job record
// persistence when the scheduler was built without a Manager.
var ErrManagerRequired = errors.New("scheduler has no job manager configured")

// Scheduler coordinates jobs and worker pools. Jobs emit work units;
// the scheduler routes each unit to a pool by type and provider, and
// feeds results back to the owning job's OnComplete. One pool per
// provider, each with its own rate limiter and priority queue; all
// pools share a single results channel drained by the scheduler.
type Scheduler struct {
	mu        sync.RWMutex
	pools     map[string]WorkerPool // pools by name
	cpuPool   *CPUWorkerPool        // shared CPU pool (also in pools map)
	jobs      map[string]Job        // active jobs by record ID
	pending   map[string]int        // jobID -> count of in-flight work units
	factories map[string]JobFactory // job factories by type, for Resume

	// Persistence (optional; nil disables job records / metrics)
	manager *Manager
	sink    *defra.Sink

	logger *slog.Logger

	// Shared results channel (pools -> scheduler)
	results chan workerResult

	// Lifecycle
	running bool
	ctx     context.Context
}

// SchedulerConfig configures a new scheduler.
type SchedulerConfig struct {
	Manager *Manager    // Job record persistence (optional)
	Sink    *defra.Sink // Async metric/call writes for provider pools (optional)
	Logger  *slog.Logger

	// Buffer size for the shared results channel (default 1000)
	ResultsBuffer int
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.ResultsBuffer
	if buffer <= 0 {
		buffer = 1000
	}

	return &Scheduler{
		pools:     make(map[string]WorkerPool),
		jobs:      make(map[string]Job),
		pending:   make(map[string]int),
		factories: make(map[string]JobFactory),
		manager:   cfg.Manager,
		sink:      cfg.Sink,
		results:   make(chan workerResult, buffer),
		logger:    logger,
	}
}

// Start runs all registered pools and the result loop.
// Blocks until ctx is cancelled. Call in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.ctx = ctx
	pools := make([]WorkerPool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	for _, p := range pools {
		go p.Start(ctx)
	}

	s.logger.Info("scheduler started", "pools", len(pools))

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.logger.Info("scheduler stopping")
			return

		case res := <-s.results:
			s.handleResult(ctx, res)
		}
	}
}

// handleResult feeds a work result to the owning job and routes any
// follow-up work units. Detects job completion when the job reports
// done and no units remain in flight.
func (s *Scheduler) handleResult(ctx context.Context, res workerResult) {
	s.mu.Lock()
	job, ok := s.jobs[res.JobID]
	if ok {
		s.pending[res.JobID]--
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("received result for unknown job",
			"job_id", res.JobID, "unit_id", res.Result.WorkUnitID)
		return
	}

	newUnits, err := job.OnComplete(ctx, res.Result)
	if err != nil {
		s.logger.Error("job OnComplete failed", "job_id", res.JobID, "error", err)
		s.failJob(ctx, res.JobID, err)
		return
	}

	if len(newUnits) > 0 {
		s.enqueueUnits(res.JobID, newUnits)
	}

	s.maybeFinish(ctx, res.JobID)
}

// maybeFinish removes a job from active tracking when it reports done
// and has no in-flight work units, and marks its record completed.
func (s *Scheduler) maybeFinish(ctx context.Context, jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	isDone := job.Done() && s.pending[jobID] <= 0
	if isDone {
		delete(s.jobs, jobID)
		delete(s.pending, jobID)
	}
	s.mu.Unlock()

	if !isDone {
		return
	}

	if s.manager != nil {
		if err := s.manager.UpdateStatus(ctx, jobID, StatusCompleted, ""); err != nil {
			s.logger.Warn("failed to mark job completed", "job_id", jobID, "error", err)
		}
	}
	s.logger.Info("job completed", "job_id", jobID, "type", job.Type())
}

// failJob removes a job from active tracking and marks its record
// failed. Results for units still in flight will be dropped with a
// warning.
func (s *Scheduler) failJob(ctx context.Context, jobID string, cause error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
		delete(s.pending, jobID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if s.manager != nil {
		if err := s.manager.UpdateStatus(ctx, jobID, StatusFailed, cause.Error()); err != nil {
			s.logger.Warn("failed to mark job failed", "job_id", jobID, "error", err)
		}
	}
	s.logger.Warn("job failed", "job_id", jobID, "type", job.Type(), "error", cause)
}

// PendingCount returns the total number of in-flight work units
// across all active jobs.
func (s *Scheduler) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, n := range s.pending {
		total += n
	}
	return total
}
