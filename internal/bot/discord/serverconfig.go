// Package discord is the presentation layer: a Discord bot exposing the
// analyzer through slash commands and keeping guild roles converged with
// badge analysis results.
package discord

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// GuildConfig describes one guild: where its badge definition lives and
// which Discord role each badge maps to.
type GuildConfig struct {
	// GuildID is the Discord guild the bot serves.
	GuildID string `yaml:"guild_id"`

	// DefinitionPath points at the badge definition document, relative to
	// the config file when not absolute.
	DefinitionPath string `yaml:"definition_path"`

	// BadgeRoles maps badge names to Discord role ids. Badges without a
	// mapping are analyzed and reported but never synced.
	BadgeRoles map[string]string `yaml:"badge_roles"`

	// AdminRoleID restricts /report, /sync and /server to holders of this
	// role. Empty means any member may use them.
	AdminRoleID string `yaml:"admin_role_id"`

	Sync SyncConfig `yaml:"sync"`
}

// Snapshot returns a copy safe to read while the original may be mutated.
// It makes *GuildConfig a ConfigSource, so a static config can stand in for
// the store in tests.
func (c *GuildConfig) Snapshot() GuildConfig {
	out := *c
	out.BadgeRoles = make(map[string]string, len(c.BadgeRoles))
	for badge, role := range c.BadgeRoles {
		out.BadgeRoles[badge] = role
	}
	return out
}

// SyncConfig controls the periodic role sync.
type SyncConfig struct {
	// Enabled turns the scheduled sync on.
	Enabled bool `yaml:"enabled"`

	// Interval between scheduled syncs.
	Interval time.Duration `yaml:"interval"`

	// DryRun logs intended role changes without applying them.
	DryRun bool `yaml:"dry_run"`
}

// UnmarshalYAML decodes the interval from a duration string like "30m".
// An absent interval keeps whatever default was set before decoding.
func (s *SyncConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
		DryRun   bool   `yaml:"dry_run"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.Enabled = raw.Enabled
	s.DryRun = raw.DryRun
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parsing sync interval: %w", err)
		}
		s.Interval = d
	}
	return nil
}

// MarshalYAML writes the interval back out as a duration string, keeping
// the file round-trippable.
func (s SyncConfig) MarshalYAML() (any, error) {
	return struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
		DryRun   bool   `yaml:"dry_run"`
	}{s.Enabled, s.Interval.String(), s.DryRun}, nil
}

// LoadGuildConfig reads the guild config and the badge definition it points
// at. The returned definition is validated and the role mapping checked
// against it.
func LoadGuildConfig(path string) (*GuildConfig, *definition.RoleDefinition, error) {
	cfg, def, _, err := loadGuildConfig(path)
	return cfg, def, err
}

// loadGuildConfig additionally returns the resolved definition path, which
// the store needs for writing redefined documents back.
func loadGuildConfig(path string) (*GuildConfig, *definition.RoleDefinition, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, "", shared.WrapError("discord", "LoadGuildConfig", shared.ErrConfig,
			"reading guild config", err)
	}

	cfg := &GuildConfig{
		Sync: SyncConfig{Interval: time.Hour},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, "", shared.WrapError("discord", "LoadGuildConfig", shared.ErrConfig,
			"guild config is not valid YAML", err)
	}

	if cfg.GuildID == "" {
		return nil, nil, "", shared.NewDomainError("discord", "LoadGuildConfig", shared.ErrConfig,
			"guild config is missing guild_id")
	}
	if cfg.DefinitionPath == "" {
		return nil, nil, "", shared.NewDomainError("discord", "LoadGuildConfig", shared.ErrConfig,
			"guild config is missing definition_path")
	}
	if cfg.Sync.Enabled && cfg.Sync.Interval <= 0 {
		return nil, nil, "", shared.NewDomainError("discord", "LoadGuildConfig", shared.ErrConfig,
			"sync.interval must be positive when sync is enabled")
	}

	defPath := cfg.DefinitionPath
	if !filepath.IsAbs(defPath) {
		defPath = filepath.Join(filepath.Dir(path), defPath)
	}

	defData, err := os.ReadFile(defPath)
	if err != nil {
		return nil, nil, "", shared.WrapError("discord", "LoadGuildConfig", shared.ErrConfig,
			"reading badge definition document", err)
	}

	def, err := definition.ParseRoleDefinition(defData)
	if err != nil {
		return nil, nil, "", err
	}

	for badge := range cfg.BadgeRoles {
		if def.Badge(badge) == nil {
			return nil, nil, "", shared.NewDomainError("discord", "LoadGuildConfig", shared.ErrConfig,
				fmt.Sprintf("badge_roles references unknown badge %q", badge))
		}
	}

	return cfg, def, defPath, nil
}
