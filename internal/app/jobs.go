/**
 * @description
 * Scheduled job implementations for the subscription-edit-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	catalog  *Catalog
	sessions *EditSessions
	logger   *slog.Logger
	timeout  time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(catalog *Catalog, sessions *EditSessions, logger *slog.Logger, timeout time.Duration) *Jobs {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Jobs{
		catalog:  catalog,
		sessions: sessions,
		logger:   logger,
		timeout:  timeout,
	}
}

// RefreshCatalog reloads the meal set catalog from the backend.
func (j *Jobs) RefreshCatalog() {
	j.logger.Info("starting meal set catalog refresh job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.catalog.Refresh(ctx); err != nil {
		j.logger.Error("failed to refresh meal set catalog", "error", err)
		return
	}

	j.logger.Info("meal set catalog refresh job finished")
}

// PruneEditSessions drops edit sessions nobody applied or discarded.
func (j *Jobs) PruneEditSessions() {
	removed := j.sessions.Prune()
	if removed == 0 {
		return
	}
	j.logger.Info("pruned expired edit sessions", "count", removed)
}
