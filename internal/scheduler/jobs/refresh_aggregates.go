// Package jobs contains the badge hub's scheduled jobs. They keep external
// board data warm and guild roles converged without any user interaction.
package jobs

import (
	"context"
	"log/slog"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH CM AGGREGATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// AggregateRefresher force-fetches the challenge-mode aggregate boards.
type AggregateRefresher interface {
	RefreshAggregates(ctx context.Context) error
}

// RefreshAggregatesJob keeps the challenge-mode aggregate boards warm on a
// fixed interval, independent of request-driven TTL expiry. Without it the
// first analysis after a quiet period pays three cold fetches.
type RefreshAggregatesJob struct {
	boards AggregateRefresher
	logger *slog.Logger
}

// NewRefreshAggregatesJob creates the aggregate refresh job.
func NewRefreshAggregatesJob(boards AggregateRefresher, logger *slog.Logger) *RefreshAggregatesJob {
	return &RefreshAggregatesJob{
		boards: boards,
		logger: logger.With(slog.String("job", "refresh_cm_aggregates")),
	}
}

// Name implements scheduler.Job.
func (j *RefreshAggregatesJob) Name() string { return "refresh_cm_aggregates" }

// Description implements scheduler.Job.
func (j *RefreshAggregatesJob) Description() string {
	return "Refreshes the challenge-mode aggregate point boards"
}

// Run implements scheduler.Job.
func (j *RefreshAggregatesJob) Run(ctx context.Context) error {
	return j.boards.RefreshAggregates(ctx)
}
