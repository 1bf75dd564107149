// Package main is the entry point for the badge hub Discord bot.
//
// The bot links Discord members to their speedrunning identities, evaluates
// a guild's badge definition against speedrun.com and board.portal2.sr, and
// keeps Discord roles converged with the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/p2community/badge-hub/config"
	"github.com/p2community/badge-hub/internal/analyzer"
	"github.com/p2community/badge-hub/internal/boards/cm"
	"github.com/p2community/badge-hub/internal/boards/srcom"
	"github.com/p2community/badge-hub/internal/bot/discord"
	"github.com/p2community/badge-hub/internal/scheduler"
	"github.com/p2community/badge-hub/internal/scheduler/jobs"
	"github.com/p2community/badge-hub/internal/storage/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting badge hub",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. GUILD CONFIG AND BADGE DEFINITION
	// ─────────────────────────────────────────────────────────────────────────
	store, err := discord.OpenStore(cfg.Discord.GuildConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load guild config: %w", err)
	}
	guildCfg := store.Snapshot()
	log.Info("badge definition loaded",
		"guild_id", guildCfg.GuildID,
		"badges", len(store.Definition().Badges),
		"mapped_roles", len(guildCfg.BadgeRoles),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	connectionRepo := postgres.NewConnectionRepository(dbConn)
	assignmentRepo := postgres.NewAssignmentRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. BOARD CLIENTS AND CACHES
	// ─────────────────────────────────────────────────────────────────────────
	srcomClientCfg := srcom.DefaultClientConfig()
	srcomClientCfg.BaseURL = cfg.Srcom.BaseURL
	srcomClientCfg.RateLimit = cfg.Srcom.RateLimit
	srcomClientCfg.RateWindow = cfg.Srcom.RateWindow
	srcomClientCfg.Timeout = cfg.Srcom.RequestTimeout

	srcomStateCfg := srcom.DefaultStateConfig()
	srcomStateCfg.LeaderboardTTL = cfg.Srcom.LeaderboardTTL
	srcomStateCfg.ResourceTTL = cfg.Srcom.ResourceTTL

	srcomState := srcom.NewState(srcom.NewClient(srcomClientCfg, log), srcomStateCfg, log)

	cmClientCfg := cm.DefaultClientConfig()
	cmClientCfg.BaseURL = cfg.CMBoards.BaseURL
	cmClientCfg.RateLimit = cfg.CMBoards.RateLimit
	cmClientCfg.RateWindow = cfg.CMBoards.RateWindow
	cmClientCfg.Timeout = cfg.CMBoards.RequestTimeout

	cmStateCfg := cm.DefaultStateConfig()
	cmStateCfg.AggregateTTL = cfg.CMBoards.AggregateTTL
	cmStateCfg.ActiveProfilesTTL = cfg.CMBoards.ActiveProfilesTTL
	cmStateCfg.ProfileTTL = cfg.CMBoards.ProfileTTL

	cmState := cm.NewState(cm.NewClient(cmClientCfg, log), cmStateCfg, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ANALYZER
	// ─────────────────────────────────────────────────────────────────────────
	badgeAnalyzer := analyzer.New(store.Definition(), srcomState, cmState, connectionRepo, assignmentRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. DISCORD BOT
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Discord bot...")

	sched := scheduler.New(log)

	bot, err := discord.New(cfg.Discord.Token, store, badgeAnalyzer, srcomState, assignmentRepo, sched, log)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SCHEDULED JOBS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		refreshJob := jobs.NewRefreshAggregatesJob(cmState, log)
		if err := sched.Register(refreshJob, scheduler.NewIntervalSchedule(cfg.CMBoards.RefreshInterval)); err != nil {
			return fmt.Errorf("failed to register aggregate refresh job: %w", err)
		}

		if guildCfg.Sync.Enabled {
			syncJob := jobs.NewSyncRolesJob(badgeAnalyzer, bot.Syncer(), bot.UsernameResolver(), log)
			if err := sched.Register(syncJob, scheduler.NewIntervalSchedule(guildCfg.Sync.Interval)); err != nil {
				return fmt.Errorf("failed to register role sync job: %w", err)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. STARTUP
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	log.Info("badge hub is running", "guild_id", guildCfg.GuildID)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("stopping Discord bot...")
	bot.Stop()

	if cfg.Scheduler.Enabled {
		log.Info("stopping scheduler...")
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", "error", err)
		}
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger builds the process logger from the configured level and format.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.App.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.App.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.App.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
