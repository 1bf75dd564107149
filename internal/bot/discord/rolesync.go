package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/p2community/badge-hub/internal/domain/account"
	"github.com/p2community/badge-hub/internal/domain/analysis"
)

// RoleManager is the slice of the Discord API the syncer needs. It exists so
// sync logic is testable without a gateway session.
type RoleManager interface {
	MemberRoles(guildID, userID string) ([]string, error)
	AddRole(guildID, userID, roleID, reason string) error
	RemoveRole(guildID, userID, roleID, reason string) error
}

// sessionRoleManager backs RoleManager with a discordgo session.
type sessionRoleManager struct {
	session *discordgo.Session
}

func (m *sessionRoleManager) MemberRoles(guildID, userID string) ([]string, error) {
	member, err := m.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching member %s: %w", userID, err)
	}
	return member.Roles, nil
}

func (m *sessionRoleManager) AddRole(guildID, userID, roleID, reason string) error {
	return m.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithAuditLogReason(reason))
}

func (m *sessionRoleManager) RemoveRole(guildID, userID, roleID, reason string) error {
	return m.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithAuditLogReason(reason))
}

// ConfigSource supplies the current guild settings the syncer acts on. The
// store implements it; a bare *GuildConfig does too.
type ConfigSource interface {
	Snapshot() GuildConfig
}

// SyncResult summarizes the role changes for one user.
type SyncResult struct {
	Added   []string // role ids granted
	Removed []string // role ids revoked
	Kept    []string // role ids protected from removal
}

// Syncer converges a member's Discord roles with their analyzed badges. The
// role mapping and dry-run flag are read from the config source on every
// sync, so store mutations take effect immediately.
type Syncer struct {
	source      ConfigSource
	manager     RoleManager
	assignments account.AssignmentRepository
	logger      *slog.Logger
}

// NewSyncer creates a role syncer for one guild.
func NewSyncer(
	source ConfigSource,
	manager RoleManager,
	assignments account.AssignmentRepository,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		source:      source,
		manager:     manager,
		assignments: assignments,
		logger:      logger.With(slog.String("component", "role_sync")),
	}
}

// SyncUser applies one user's analysis to their guild roles. Met badges get
// their mapped role added; unmet badges get it removed, unless the badge is
// protected from auto-removal or the user holds a manual assignment for it.
// In dry-run mode changes are logged and counted but not applied.
func (s *Syncer) SyncUser(ctx context.Context, user *analysis.AnalyzedUser) (*SyncResult, error) {
	cfg := s.source.Snapshot()

	memberRoles, err := s.manager.MemberRoles(cfg.GuildID, user.UserID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = true
	}

	manual, err := s.manualBadges(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for i := range user.Badges {
		badge := &user.Badges[i]
		roleID, mapped := cfg.BadgeRoles[badge.Definition.Name]
		if !mapped {
			continue
		}

		switch {
		case badge.Met() && !held[roleID]:
			reason := grantReason(badge)
			if err := s.apply(&cfg, "add", user.UserID, roleID, reason, func() error {
				return s.manager.AddRole(cfg.GuildID, user.UserID, roleID, reason)
			}); err != nil {
				return nil, err
			}
			result.Added = append(result.Added, roleID)

		case !badge.Met() && held[roleID]:
			if !badge.Definition.CanAutoremove() || manual[badge.Definition.Name] {
				result.Kept = append(result.Kept, roleID)
				continue
			}
			reason := fmt.Sprintf("badge %q no longer met", badge.Definition.Name)
			if err := s.apply(&cfg, "remove", user.UserID, roleID, reason, func() error {
				return s.manager.RemoveRole(cfg.GuildID, user.UserID, roleID, reason)
			}); err != nil {
				return nil, err
			}
			result.Removed = append(result.Removed, roleID)
		}
	}

	return result, nil
}

// SyncAll applies a full report to the guild.
func (s *Syncer) SyncAll(ctx context.Context, report *analysis.Report) (added, removed int, err error) {
	for _, user := range report.Users {
		result, err := s.SyncUser(ctx, user)
		if err != nil {
			return added, removed, fmt.Errorf("syncing user %s: %w", user.UserID, err)
		}
		added += len(result.Added)
		removed += len(result.Removed)
	}

	s.logger.Info("role sync finished",
		slog.Int("users", len(report.Users)),
		slog.Int("roles_added", added),
		slog.Int("roles_removed", removed),
		slog.Bool("dry_run", s.source.Snapshot().Sync.DryRun))
	return added, removed, nil
}

func (s *Syncer) apply(cfg *GuildConfig, action, userID, roleID, reason string, fn func() error) error {
	if cfg.Sync.DryRun {
		s.logger.Info("dry run: skipping role change",
			slog.String("action", action),
			slog.String("user_id", userID),
			slog.String("role_id", roleID),
			slog.String("reason", reason))
		return nil
	}

	s.logger.Debug("applying role change",
		slog.String("action", action),
		slog.String("user_id", userID),
		slog.String("role_id", roleID))
	return fn()
}

func (s *Syncer) manualBadges(ctx context.Context, userID string) (map[string]bool, error) {
	assignments, err := s.assignments.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		set[a.Badge] = true
	}
	return set, nil
}

// grantReason renders the audit-log reason for a role grant from the first
// met requirement.
func grantReason(badge *analysis.AnalyzedBadge) string {
	if len(badge.MetRequirements) == 0 {
		return fmt.Sprintf("badge %q met", badge.Definition.Name)
	}
	return fmt.Sprintf("badge %q met: %s",
		badge.Definition.Name,
		badge.MetRequirements[0].Requirement.ShortDescription())
}
