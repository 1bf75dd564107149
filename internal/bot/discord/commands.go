package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/p2community/badge-hub/internal/domain/analysis"
	"github.com/p2community/badge-hub/internal/domain/definition"
)

// commandTimeout bounds one slash command end to end, including any cold
// board fetches it triggers.
const commandTimeout = 120 * time.Second

// maxDefinitionSize caps uploaded definition documents.
const maxDefinitionSize = 1 << 20

var definitionOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionAttachment,
	Name:        "definition",
	Description: "Badge definition document to use instead of the stored one",
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "analyze",
		Description: "Analyze every linked member and summarize badge counts",
		Options:     []*discordgo.ApplicationCommandOption{definitionOption},
	},
	{
		Name:        "user",
		Description: "Show a member's linked accounts and earned badges",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "member",
				Description: "Member to look up (defaults to you)",
			},
			definitionOption,
		},
	},
	{
		Name:        "report",
		Description: "CSV report of who satisfies one badge's requirements",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "badge",
				Description: "Badge to report on",
				Required:    true,
			},
			definitionOption,
		},
	},
	{
		Name:        "sync",
		Description: "Converge badge roles with analysis results",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "member",
			Description: "Sync a single member instead of the whole guild",
		}},
	},
	{
		Name:        "server",
		Description: "Manage the guild's badge configuration",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "roles",
				Description: "Manage the badge to role mapping",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "List the badge to role mapping",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "add",
						Description: "Map a badge to a role",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "badge",
								Description: "Badge name",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionRole,
								Name:        "role",
								Description: "Role to grant",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "remove",
						Description: "Remove a badge's role mapping",
						Options: []*discordgo.ApplicationCommandOption{{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "badge",
							Description: "Badge name",
							Required:    true,
						}},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "redefine",
				Description: "Replace the stored badge definition document",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "definition",
					Description: "New badge definition document",
					Required:    true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "refresh",
				Description: "Run the background refresh jobs now",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "dryrun",
				Description: "Toggle dry-run mode for role sync",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Log role changes without applying them",
					Required:    true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the badge definition and job status",
			},
		},
	},
}

func (b *Bot) handleInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}

	cmd := ic.ApplicationCommandData()
	b.logger.Info("command received",
		slog.String("command", cmd.Name),
		slog.String("user_id", ic.Member.User.ID))

	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic in command handler",
				slog.String("command", cmd.Name),
				slog.Any("panic", rec))
			b.followUp(ic, "Something went wrong while processing the command.")
		}
	}()

	if cmd.Name != "user" && !b.isAdmin(ic) {
		b.respondEphemeral(ic, "You need the admin role to use this command.")
		return
	}

	if err := b.deferEphemeral(ic); err != nil {
		b.logger.Error("failed to defer interaction", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Name {
	case "analyze":
		b.handleAnalyze(ctx, ic)
	case "user":
		b.handleUser(ctx, ic)
	case "report":
		b.handleReport(ctx, ic)
	case "sync":
		b.handleSync(ctx, ic)
	case "server":
		b.handleServer(ctx, ic)
	default:
		b.followUp(ic, fmt.Sprintf("Unknown command /%s.", cmd.Name))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// /analyze
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) handleAnalyze(ctx context.Context, ic *discordgo.InteractionCreate) {
	def, err := b.resolveDefinition(ctx, ic)
	if err != nil {
		b.replyError(ic, "loading definition failed", err)
		return
	}

	report, err := b.analyzer.AnalyzeAllWith(ctx, def, b.UsernameResolver())
	if err != nil {
		b.replyError(ic, "analysis failed", err)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Badge analysis " + report.ID.String(),
		Description: fmt.Sprintf("Analyzed **%d** linked users, **%d** with at least one badge.\nspeedrun.com accounts: %d, challenge mode accounts: %d.",
			report.TotalUsers, report.UsersWithBadges,
			report.UsersByPlatform[definition.PlatformSrcom],
			report.UsersByPlatform[definition.PlatformCM]),
		Color: 0x2e86c1,
	}

	for i := range def.Badges {
		badge := &def.Badges[i]
		lines := make([]string, 0, len(badge.Requirements)+1)
		lines = append(lines, fmt.Sprintf("**%d** users earned it", report.BadgeCounts[badge.Name]))
		for j := range badge.Requirements {
			req := &badge.Requirements[j]
			lines = append(lines, fmt.Sprintf("%s: %d", req.ShortDescription(), report.RequirementCounts[req.Key()]))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  badge.Name,
			Value: strings.Join(lines, "\n"),
		})
	}

	b.followUpEmbed(ic, embed)
}

// ─────────────────────────────────────────────────────────────────────────────
// /user
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) handleUser(ctx context.Context, ic *discordgo.InteractionCreate) {
	def, err := b.resolveDefinition(ctx, ic)
	if err != nil {
		b.replyError(ic, "loading definition failed", err)
		return
	}

	target := b.targetUser(ic)
	user, err := b.analyzer.AnalyzeUserWith(ctx, def, target.ID, target.Username)
	if err != nil {
		b.replyError(ic, "analysis failed", err)
		return
	}

	var sb strings.Builder
	if len(user.Accounts) == 0 {
		sb.WriteString("No linked leaderboard accounts.\n")
	}
	for _, acc := range user.Accounts {
		sb.WriteString("• " + accountLine(acc) + "\n")
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Badges for %s", target.Username),
		Description: sb.String(),
		Color:       0x2e86c1,
	}

	for i := range user.Badges {
		badge := &user.Badges[i]
		if !badge.Met() {
			continue
		}
		lines := make([]string, 0, len(badge.MetRequirements))
		for _, met := range badge.MetRequirements {
			lines = append(lines, "✓ "+b.describeMet(ctx, met))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  badge.Definition.Name,
			Value: strings.Join(lines, "\n"),
		})
	}
	if len(embed.Fields) == 0 {
		embed.Description += "\nNo badges earned."
	}

	b.followUpEmbed(ic, embed)
}

// accountLine renders one linked account, linking the provider-reported
// profile URL when there is one.
func accountLine(acc analysis.ExternalAccount) string {
	name := acc.Name
	if name == "" {
		name = acc.ID
	}
	switch acc.Platform {
	case definition.PlatformSrcom:
		if acc.Weblink != "" {
			return fmt.Sprintf("speedrun.com: [%s](%s)", name, acc.Weblink)
		}
		return "speedrun.com: " + name
	case definition.PlatformCM:
		return fmt.Sprintf("challenge mode: [%s](https://board.portal2.sr/profile/%s)", name, acc.ID)
	default:
		return fmt.Sprintf("%s: %s", acc.Platform, name)
	}
}

// describeMet renders a met requirement with resolved display names, falling
// back to raw ids when a name lookup fails.
func (b *Bot) describeMet(ctx context.Context, met analysis.MetRequirement) string {
	desc, err := met.Requirement.Format(ctx, b.names)
	if err != nil {
		desc = met.Requirement.ShortDescription()
	}

	switch cause := met.Cause.(type) {
	case analysis.ManualCause:
		if cause.AssignedBy == "" {
			return desc
		}
		return fmt.Sprintf("%s (granted by <@%s> on %s)", desc, cause.AssignedBy, cause.AssignedAt.Format("2006-01-02"))
	case analysis.FullgameRunCause:
		if cause.Link != "" {
			return fmt.Sprintf("%s, [place %d](%s)", desc, cause.Place, cause.Link)
		}
		return fmt.Sprintf("%s (place %d)", desc, cause.Place)
	case analysis.AggregateScoreCause:
		return fmt.Sprintf("%s (%d points, rank %d)", desc, cause.Points, cause.Rank)
	default:
		return desc
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// /report
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) handleReport(ctx context.Context, ic *discordgo.InteractionCreate) {
	def, err := b.resolveDefinition(ctx, ic)
	if err != nil {
		b.replyError(ic, "loading definition failed", err)
		return
	}

	badgeName, _ := b.stringOption(ic, "badge")
	if def.Badge(badgeName) == nil {
		b.followUp(ic, fmt.Sprintf("The definition has no badge named %q.", badgeName))
		return
	}

	report, err := b.analyzer.AnalyzeAllWith(ctx, def, b.UsernameResolver())
	if err != nil {
		b.replyError(ic, "report failed", err)
		return
	}

	var csvBuf bytes.Buffer
	if err := report.WriteBadgeCSV(&csvBuf, badgeName); err != nil {
		b.replyError(ic, "report export failed", err)
		return
	}

	_, err = b.session.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: fmt.Sprintf("Badge report for **%s**: %d of %d analyzed users earned it.",
			badgeName, report.BadgeCounts[badgeName], report.TotalUsers),
		Files: []*discordgo.File{{
			Name:        fmt.Sprintf("badge-report-%s.csv", report.ID),
			ContentType: "text/csv",
			Reader:      &csvBuf,
		}},
	})
	if err != nil {
		b.logger.Error("failed to send report", slog.Any("error", err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// /sync
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) handleSync(ctx context.Context, ic *discordgo.InteractionCreate) {
	if target := b.optionUser(ic); target != nil {
		user, err := b.analyzer.AnalyzeUser(ctx, target.ID, target.Username)
		if err != nil {
			b.replyError(ic, "analysis failed", err)
			return
		}
		result, err := b.syncer.SyncUser(ctx, user)
		if err != nil {
			b.replyError(ic, "role sync failed", err)
			return
		}
		b.followUp(ic, fmt.Sprintf("Synced %s: %d roles added, %d removed, %d protected.",
			target.Username, len(result.Added), len(result.Removed), len(result.Kept)))
		return
	}

	report, err := b.analyzer.AnalyzeAll(ctx, b.UsernameResolver())
	if err != nil {
		b.replyError(ic, "analysis failed", err)
		return
	}
	added, removed, err := b.syncer.SyncAll(ctx, report)
	if err != nil {
		b.replyError(ic, "role sync failed", err)
		return
	}
	b.followUp(ic, fmt.Sprintf("Synced %d users: %d roles added, %d removed.",
		report.TotalUsers, added, removed))
}

// ─────────────────────────────────────────────────────────────────────────────
// /server
// ─────────────────────────────────────────────────────────────────────────────

func (b *Bot) handleServer(ctx context.Context, ic *discordgo.InteractionCreate) {
	opts := ic.ApplicationCommandData().Options
	if len(opts) == 0 {
		b.followUp(ic, "Missing subcommand.")
		return
	}
	sub := opts[0]

	switch sub.Name {
	case "roles":
		if len(sub.Options) == 0 {
			b.followUp(ic, "Missing roles subcommand.")
			return
		}
		b.handleServerRoles(ic, sub.Options[0])
	case "redefine":
		b.handleServerRedefine(ctx, ic, sub)
	case "refresh":
		b.handleServerRefresh(ctx, ic)
	case "dryrun":
		enabled := false
		for _, opt := range sub.Options {
			if opt.Name == "enabled" {
				enabled = opt.BoolValue()
			}
		}
		if err := b.store.SetDryRun(enabled); err != nil {
			b.replyError(ic, "updating dry-run mode failed", err)
			return
		}
		b.followUp(ic, fmt.Sprintf("Dry-run mode is now **%v**.", enabled))
	case "status":
		b.handleServerStatus(ic)
	default:
		b.followUp(ic, fmt.Sprintf("Unknown subcommand %q.", sub.Name))
	}
}

func (b *Bot) handleServerRoles(ic *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	switch sub.Name {
	case "list":
		cfg := b.store.Snapshot()
		if len(cfg.BadgeRoles) == 0 {
			b.followUp(ic, "No badges are mapped to roles.")
			return
		}
		var sb strings.Builder
		def := b.store.Definition()
		for i := range def.Badges {
			if roleID, ok := cfg.BadgeRoles[def.Badges[i].Name]; ok {
				fmt.Fprintf(&sb, "• %s → <@&%s>\n", def.Badges[i].Name, roleID)
			}
		}
		b.followUp(ic, sb.String())

	case "add":
		var badge, roleID string
		for _, opt := range sub.Options {
			switch opt.Name {
			case "badge":
				badge = opt.StringValue()
			case "role":
				roleID = opt.RoleValue(nil, "").ID
			}
		}
		if err := b.store.MapRole(badge, roleID); err != nil {
			b.replyError(ic, "mapping role failed", err)
			return
		}
		b.followUp(ic, fmt.Sprintf("Badge **%s** now grants <@&%s>.", badge, roleID))

	case "remove":
		var badge string
		for _, opt := range sub.Options {
			if opt.Name == "badge" {
				badge = opt.StringValue()
			}
		}
		if err := b.store.UnmapRole(badge); err != nil {
			b.replyError(ic, "removing role mapping failed", err)
			return
		}
		b.followUp(ic, fmt.Sprintf("Badge **%s** no longer grants a role.", badge))

	default:
		b.followUp(ic, fmt.Sprintf("Unknown roles subcommand %q.", sub.Name))
	}
}

func (b *Bot) handleServerRedefine(ctx context.Context, ic *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	var attachment *discordgo.MessageAttachment
	for _, opt := range sub.Options {
		if opt.Type == discordgo.ApplicationCommandOptionAttachment {
			id, _ := opt.Value.(string)
			attachment = ic.ApplicationCommandData().Resolved.Attachments[id]
		}
	}
	if attachment == nil {
		b.followUp(ic, "Attach a badge definition document.")
		return
	}

	data, err := b.fetchAttachment(ctx, attachment)
	if err != nil {
		b.replyError(ic, "downloading definition failed", err)
		return
	}

	def, err := b.store.Redefine(data)
	if err != nil {
		b.replyError(ic, "redefining badges failed", err)
		return
	}
	b.analyzer.SetDefinition(def)

	b.followUp(ic, fmt.Sprintf("Badge definition replaced: %d badges.", len(def.Badges)))
}

func (b *Bot) handleServerRefresh(ctx context.Context, ic *discordgo.InteractionCreate) {
	if b.sched == nil {
		b.followUp(ic, "No scheduler is configured.")
		return
	}

	var lines []string
	for _, job := range b.sched.ListJobs() {
		result, err := b.sched.RunNow(ctx, job.Name)
		if err != nil {
			b.logger.Warn("manual job run failed", slog.String("job", job.Name), slog.Any("error", err))
			lines = append(lines, fmt.Sprintf("✗ %s: %v", job.Name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✓ %s (%s)", job.Name, result.Duration.Round(time.Millisecond)))
	}

	if len(lines) == 0 {
		b.followUp(ic, "No jobs registered.")
		return
	}
	b.followUp(ic, strings.Join(lines, "\n"))
}

func (b *Bot) handleServerStatus(ic *discordgo.InteractionCreate) {
	cfg := b.store.Snapshot()
	def := b.store.Definition()

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Badges** (%d):\n", len(def.Badges))
	for i := range def.Badges {
		badge := &def.Badges[i]
		if roleID, ok := cfg.BadgeRoles[badge.Name]; ok {
			fmt.Fprintf(&sb, "• %s → <@&%s> (%d requirements)\n", badge.Name, roleID, len(badge.Requirements))
		} else {
			fmt.Fprintf(&sb, "• %s (%d requirements, no role mapped)\n", badge.Name, len(badge.Requirements))
		}
	}

	fmt.Fprintf(&sb, "\nScheduled sync: enabled=%v interval=%s dry_run=%v\n",
		cfg.Sync.Enabled, cfg.Sync.Interval, cfg.Sync.DryRun)

	if b.sched != nil {
		sb.WriteString("\n**Jobs**:\n")
		for _, job := range b.sched.ListJobs() {
			status := "ok"
			if job.LastResult != nil && !job.LastResult.Success {
				status = "failed"
			} else if job.LastRun.IsZero() {
				status = "not yet run"
			}
			fmt.Fprintf(&sb, "• %s (%s): %s, next run %s\n",
				job.Name, job.Schedule, status, job.NextRun.Format(time.RFC3339))
		}
	}

	b.followUpEmbed(ic, &discordgo.MessageEmbed{
		Title:       "Badge hub status",
		Description: sb.String(),
		Color:       0x884ea0,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// resolveDefinition returns the attached definition document when present,
// the stored one otherwise.
func (b *Bot) resolveDefinition(ctx context.Context, ic *discordgo.InteractionCreate) (*definition.RoleDefinition, error) {
	for _, opt := range ic.ApplicationCommandData().Options {
		if opt.Type != discordgo.ApplicationCommandOptionAttachment {
			continue
		}
		id, _ := opt.Value.(string)
		attachment := ic.ApplicationCommandData().Resolved.Attachments[id]
		if attachment == nil {
			continue
		}
		data, err := b.fetchAttachment(ctx, attachment)
		if err != nil {
			return nil, err
		}
		return definition.ParseRoleDefinition(data)
	}
	return b.store.Definition(), nil
}

func (b *Bot) fetchAttachment(ctx context.Context, attachment *discordgo.MessageAttachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building attachment request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading attachment: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDefinitionSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if len(data) > maxDefinitionSize {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxDefinitionSize)
	}
	return data, nil
}

func (b *Bot) respondEphemeral(ic *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("failed to respond", slog.Any("error", err))
	}
}

func (b *Bot) deferEphemeral(ic *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (b *Bot) followUp(ic *discordgo.InteractionCreate, content string) {
	_, err := b.session.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		b.logger.Error("failed to send follow-up", slog.Any("error", err))
	}
}

func (b *Bot) followUpEmbed(ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_, err := b.session.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		b.logger.Error("failed to send follow-up embed", slog.Any("error", err))
	}
}

func (b *Bot) replyError(ic *discordgo.InteractionCreate, what string, err error) {
	b.logger.Error(what, slog.Any("error", err))
	b.followUp(ic, fmt.Sprintf("Sorry, %s: %v", what, err))
}

// targetUser returns the member option when present, the invoker otherwise.
func (b *Bot) targetUser(ic *discordgo.InteractionCreate) *discordgo.User {
	if u := b.optionUser(ic); u != nil {
		return u
	}
	return ic.Member.User
}

func (b *Bot) optionUser(ic *discordgo.InteractionCreate) *discordgo.User {
	for _, opt := range ic.ApplicationCommandData().Options {
		if opt.Type == discordgo.ApplicationCommandOptionUser {
			return opt.UserValue(b.session)
		}
	}
	return nil
}

func (b *Bot) stringOption(ic *discordgo.InteractionCreate, name string) (string, bool) {
	for _, opt := range ic.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue(), true
		}
	}
	return "", false
}

func (b *Bot) isAdmin(ic *discordgo.InteractionCreate) bool {
	adminRole := b.store.Snapshot().AdminRoleID
	if adminRole == "" {
		return true
	}
	for _, role := range ic.Member.Roles {
		if role == adminRole {
			return true
		}
	}
	return false
}
