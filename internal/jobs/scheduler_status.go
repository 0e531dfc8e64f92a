package jobs

import (
	"context"
	"fmt"
)

// JobStatus returns the status of a specific job.
func (s *Scheduler) JobStatus(ctx context.Context, jobID string) (map[string]string, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	pending := s.pending[jobID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	status, err := job.Status(ctx)
	if err != nil {
		return nil, err
	}

	if status == nil {
		status = make(map[string]string)
	}
	status["pending_units"] = fmt.Sprintf("%d", pending)

	return status, nil
}

// JobProgress returns per-provider work unit progress for an active
// job, or nil if the job is not active.
func (s *Scheduler) JobProgress(jobID string) map[string]ProviderProgress {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return nil
	}
	return job.Progress()
}

// ActiveJobs returns the number of active jobs.
func (s *Scheduler) ActiveJobs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// PoolStatuses returns queue depth and rate limiter status for all pools.
func (s *Scheduler) PoolStatuses() map[string]PoolStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]PoolStatus, len(s.pools))
	for name, p := range s.pools {
		statuses[name] = p.Status()
	}
	return statuses
}
