package jobs

import (
	"context"
	"log/slog"

	"github.com/p2community/badge-hub/internal/analyzer"
	"github.com/p2community/badge-hub/internal/domain/analysis"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC BADGE ROLES JOB
// ══════════════════════════════════════════════════════════════════════════════

// BatchAnalyzer produces a full analysis report of every linked user.
type BatchAnalyzer interface {
	AnalyzeAll(ctx context.Context, usernames analyzer.UsernameResolver) (*analysis.Report, error)
}

// RoleSyncer converges guild roles with a report's results.
type RoleSyncer interface {
	SyncAll(ctx context.Context, report *analysis.Report) (added, removed int, err error)
}

// SyncRolesJob periodically re-analyzes every linked user and converges the
// guild's badge roles with the results.
type SyncRolesJob struct {
	analyzer  BatchAnalyzer
	syncer    RoleSyncer
	usernames analyzer.UsernameResolver
	logger    *slog.Logger
}

// NewSyncRolesJob creates the role sync job.
func NewSyncRolesJob(a BatchAnalyzer, s RoleSyncer, usernames analyzer.UsernameResolver, logger *slog.Logger) *SyncRolesJob {
	return &SyncRolesJob{
		analyzer:  a,
		syncer:    s,
		usernames: usernames,
		logger:    logger.With(slog.String("job", "sync_badge_roles")),
	}
}

// Name implements scheduler.Job.
func (j *SyncRolesJob) Name() string { return "sync_badge_roles" }

// Description implements scheduler.Job.
func (j *SyncRolesJob) Description() string {
	return "Re-analyzes all linked users and converges badge roles"
}

// Run implements scheduler.Job.
func (j *SyncRolesJob) Run(ctx context.Context) error {
	report, err := j.analyzer.AnalyzeAll(ctx, j.usernames)
	if err != nil {
		return err
	}

	added, removed, err := j.syncer.SyncAll(ctx, report)
	if err != nil {
		return err
	}

	j.logger.Info("role sync completed",
		slog.String("report_id", report.ID.String()),
		slog.Int("users", report.TotalUsers),
		slog.Int("roles_added", added),
		slog.Int("roles_removed", removed))
	return nil
}
