// Package analyzer evaluates badge definitions against users' linked
// accounts. It is the core of the project: everything else either feeds it
// (storage, board providers) or renders its output (bot, reports).
package analyzer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p2community/badge-hub/internal/boards/cm"
	"github.com/p2community/badge-hub/internal/boards/srcom"
	"github.com/p2community/badge-hub/internal/domain/account"
	"github.com/p2community/badge-hub/internal/domain/analysis"
	"github.com/p2community/badge-hub/internal/domain/definition"
)

// SrcomBoards is the slice of srcom state the analyzer needs.
type SrcomBoards interface {
	Board(ctx context.Context, req *definition.RequirementDefinition) (*srcom.Board, error)
	UserProfile(ctx context.Context, id string) (*srcom.User, error)
}

// CMBoards is the slice of challenge-mode state the analyzer needs.
type CMBoards interface {
	Score(ctx context.Context, board definition.CMLeaderboard, steamID uint64) (cm.ScoreData, bool, error)
	IsActive(ctx context.Context, months uint64, steamID uint64) (bool, error)
	Profile(ctx context.Context, steamID uint64) (*cm.Profile, error)
}

// UsernameResolver maps a Discord user id to a display name. The bot backs
// it with the guild member list; a nil resolver leaves names empty.
type UsernameResolver func(userID string) string

// Analyzer evaluates badge definitions. It holds no per-user state and is
// safe for concurrent use; all caching lives in the board states behind it.
// The active definition can be swapped at runtime; in-flight passes keep the
// definition they started with.
type Analyzer struct {
	mu          sync.RWMutex
	definition  *definition.RoleDefinition
	srcom       SrcomBoards
	cm          CMBoards
	connections account.ConnectionRepository
	assignments account.AssignmentRepository
	logger      *slog.Logger

	now func() time.Time
}

// New creates an analyzer for the given definition.
func New(
	def *definition.RoleDefinition,
	srcomBoards SrcomBoards,
	cmBoards CMBoards,
	connections account.ConnectionRepository,
	assignments account.AssignmentRepository,
	logger *slog.Logger,
) *Analyzer {
	return &Analyzer{
		definition:  def,
		srcom:       srcomBoards,
		cm:          cmBoards,
		connections: connections,
		assignments: assignments,
		logger:      logger.With(slog.String("component", "analyzer")),
		now:         time.Now,
	}
}

// Definition returns the active badge definition.
func (a *Analyzer) Definition() *definition.RoleDefinition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.definition
}

// SetDefinition replaces the active badge definition.
func (a *Analyzer) SetDefinition(def *definition.RoleDefinition) {
	a.mu.Lock()
	a.definition = def
	a.mu.Unlock()
}

// AnalyzeUser evaluates every badge of the active definition for one user.
func (a *Analyzer) AnalyzeUser(ctx context.Context, userID, username string) (*analysis.AnalyzedUser, error) {
	return a.AnalyzeUserWith(ctx, a.Definition(), userID, username)
}

// AnalyzeUserWith evaluates every badge of the given definition for one
// user. A user without linked accounts still gets a result: manual
// assignments apply regardless.
func (a *Analyzer) AnalyzeUserWith(ctx context.Context, def *definition.RoleDefinition, userID, username string) (*analysis.AnalyzedUser, error) {
	conns, err := a.connections.ConnectionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts, err := a.resolveAccounts(ctx, conns)
	if err != nil {
		return nil, err
	}

	manual, err := a.manualBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	user := &analysis.AnalyzedUser{
		UserID:   userID,
		Username: username,
		Accounts: accounts,
	}

	for i := range def.Badges {
		badge := &def.Badges[i]
		analyzed := analysis.AnalyzedBadge{Definition: badge}

		var assignment *account.ManualAssignment
		if row, ok := manual[badge.Name]; ok {
			assignment = &row
		}

		for j := range badge.Requirements {
			req := &badge.Requirements[j]
			cause, met, err := a.evaluateRequirement(ctx, req, accounts, assignment)
			if err != nil {
				return nil, err
			}
			if met {
				analyzed.MetRequirements = append(analyzed.MetRequirements,
					analysis.MetRequirement{Requirement: req, Cause: cause})
			}
		}

		user.Badges = append(user.Badges, analyzed)
	}

	a.logger.Debug("user analyzed",
		slog.String("user_id", userID),
		slog.Int("accounts", len(accounts)),
		slog.Int("met_badges", len(user.MetBadges())))
	return user, nil
}

// AnalyzeAll evaluates every linked user against the active definition.
func (a *Analyzer) AnalyzeAll(ctx context.Context, usernames UsernameResolver) (*analysis.Report, error) {
	return a.AnalyzeAllWith(ctx, a.Definition(), usernames)
}

// AnalyzeAllWith evaluates every user that has at least one linked account
// and folds the results into a report. Users run sequentially: the first
// user's cache misses warm the shared board caches for everyone after. A
// failed user aborts the whole pass.
func (a *Analyzer) AnalyzeAllWith(ctx context.Context, def *definition.RoleDefinition, usernames UsernameResolver) (*analysis.Report, error) {
	userIDs, err := a.connections.UsersWithConnections(ctx)
	if err != nil {
		return nil, err
	}

	report := analysis.NewReport(a.now())
	for _, userID := range userIDs {
		name := ""
		if usernames != nil {
			name = usernames(userID)
		}

		user, err := a.AnalyzeUserWith(ctx, def, userID, name)
		if err != nil {
			return nil, err
		}
		report.Add(user)
	}
	report.Finish(a.now())

	a.logger.Info("analysis pass finished",
		slog.String("report_id", report.ID.String()),
		slog.Int("users", report.TotalUsers),
		slog.Int("users_with_badges", report.UsersWithBadges),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// resolveAccounts turns connection rows into external accounts with display
// names, in link order.
func (a *Analyzer) resolveAccounts(ctx context.Context, conns []account.VerifiedConnection) ([]analysis.ExternalAccount, error) {
	accounts := make([]analysis.ExternalAccount, 0, len(conns))
	for _, conn := range conns {
		acc := analysis.ExternalAccount{
			Platform: conn.Type.Platform(),
			ID:       conn.ExternalID,
		}

		switch conn.Type {
		case account.ConnectionSrcom:
			u, err := a.srcom.UserProfile(ctx, conn.ExternalID)
			if err != nil {
				return nil, err
			}
			acc.Name = u.Name()
			acc.Weblink = u.Weblink
		case account.ConnectionSteam:
			id, err := cm.ParseProfileID(conn.ExternalID)
			if err != nil {
				return nil, err
			}
			profile, err := a.cm.Profile(ctx, id)
			if err != nil {
				return nil, err
			}
			acc.Name = profile.UserData.Boardname
		}

		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// manualBadges returns the user's manual assignments keyed by badge name.
func (a *Analyzer) manualBadges(ctx context.Context, userID string) (map[string]account.ManualAssignment, error) {
	assignments, err := a.assignments.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byBadge := make(map[string]account.ManualAssignment, len(assignments))
	for _, assignment := range assignments {
		byBadge[assignment.Badge] = assignment
	}
	return byBadge, nil
}
