/**
 * @description
 * Cron scheduler setup for the catalog refresh and edit session pruning jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger

	catalogSchedule string
	pruneSchedule   string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, catalogSchedule, pruneSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:            c,
		jobs:            jobs,
		logger:          logger,
		catalogSchedule: catalogSchedule,
		pruneSchedule:   pruneSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler. A job with an
// invalid schedule is logged and skipped.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.catalogSchedule, s.jobs.RefreshCatalog); err != nil {
		s.logger.Error("failed to schedule catalog refresh job", "error", err)
	} else {
		s.logger.Info("scheduled catalog refresh job", "schedule", s.catalogSchedule)
	}

	if _, err := s.cron.AddFunc(s.pruneSchedule, s.jobs.PruneEditSessions); err != nil {
		s.logger.Error("failed to schedule edit session prune job", "error", err)
	} else {
		s.logger.Info("scheduled edit session prune job", "schedule", s.pruneSchedule)
	}

	s.cron.Start()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
