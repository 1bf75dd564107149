package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/p2community/badge-hub/internal/analyzer"
	"github.com/p2community/badge-hub/internal/domain/account"
	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/scheduler"
)

// Bot is the Discord gateway connection plus the slash command surface.
type Bot struct {
	session  *discordgo.Session
	store    *Store
	guildID  string
	analyzer *analyzer.Analyzer
	names    definition.NameSource
	syncer   *Syncer
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	registered []*discordgo.ApplicationCommand
}

// New creates the bot and its role syncer. The session is configured but
// not yet connected; call Start.
func New(
	token string,
	store *Store,
	a *analyzer.Analyzer,
	names definition.NameSource,
	assignments account.AssignmentRepository,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	return &Bot{
		session:  session,
		store:    store,
		guildID:  store.Snapshot().GuildID,
		analyzer: a,
		names:    names,
		syncer:   NewSyncer(store, &sessionRoleManager{session: session}, assignments, logger),
		sched:    sched,
		logger:   logger.With(slog.String("component", "discord_bot")),
	}, nil
}

// Syncer returns the bot's role syncer, for wiring into scheduled jobs.
func (b *Bot) Syncer() *Syncer { return b.syncer }

// UsernameResolver resolves display names from the member cache, falling
// back to the API.
func (b *Bot) UsernameResolver() analyzer.UsernameResolver {
	return func(userID string) string {
		member, err := b.session.State.Member(b.guildID, userID)
		if err != nil {
			member, err = b.session.GuildMember(b.guildID, userID)
			if err != nil {
				return ""
			}
		}
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil {
			return member.User.Username
		}
		return ""
	}
}

// Start opens the gateway connection and registers the guild's slash
// commands.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	for _, cmd := range commands {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd)
		if err != nil {
			b.Stop()
			return fmt.Errorf("registering command /%s: %w", cmd.Name, err)
		}
		b.registered = append(b.registered, created)
	}

	b.logger.Info("bot started",
		slog.String("guild_id", b.guildID),
		slog.Int("commands", len(b.registered)))
	return nil
}

// Stop deregisters the slash commands and closes the gateway connection.
func (b *Bot) Stop() {
	for _, cmd := range b.registered {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID); err != nil {
			b.logger.Warn("failed to delete command", slog.String("command", cmd.Name), slog.Any("error", err))
		}
	}
	b.registered = nil

	if err := b.session.Close(); err != nil {
		b.logger.Warn("failed to close session", slog.Any("error", err))
	}
	b.logger.Info("bot stopped")
}
