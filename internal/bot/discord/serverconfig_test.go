package discord

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

const testDefinition = `{
	"badges": [
		{
			"name": "Champion",
			"requirements": [
				{"type": "rank", "platform": "srcom", "game": "om1mw4d2", "category": "jzd33ndn", "top": 1},
			],
		},
		{
			"name": "Elite",
			"requirements": [
				{"type": "points", "leaderboard": "overall", "points": 12000},
			],
		},
	],
}`

func writeGuildFiles(t *testing.T, guildYAML string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "badges.jsonc"), []byte(testDefinition), 0o644))
	cfgPath := filepath.Join(dir, "guild.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(guildYAML), 0o644))
	return cfgPath
}

func TestLoadGuildConfig(t *testing.T) {
	path := writeGuildFiles(t, `
guild_id: "123456789"
definition_path: badges.jsonc
admin_role_id: "987"
badge_roles:
  Champion: "111"
  Elite: "222"
sync:
  enabled: true
  interval: 30m
  dry_run: true
`)

	cfg, def, err := LoadGuildConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "123456789", cfg.GuildID)
	assert.Equal(t, "987", cfg.AdminRoleID)
	assert.Equal(t, "111", cfg.BadgeRoles["Champion"])
	assert.True(t, cfg.Sync.Enabled)
	assert.True(t, cfg.Sync.DryRun)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)

	require.Len(t, def.Badges, 2)
	assert.NotNil(t, def.Badge("Champion"))
}

func TestLoadGuildConfig_DefaultSyncInterval(t *testing.T) {
	path := writeGuildFiles(t, `
guild_id: "123"
definition_path: badges.jsonc
`)

	cfg, _, err := LoadGuildConfig(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.False(t, cfg.Sync.Enabled)
}

func TestLoadGuildConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing guild id", "definition_path: badges.jsonc\n"},
		{"missing definition path", "guild_id: \"123\"\n"},
		{"unknown badge in mapping", `
guild_id: "123"
definition_path: badges.jsonc
badge_roles:
  Nonexistent: "111"
`},
		{"sync enabled without interval", `
guild_id: "123"
definition_path: badges.jsonc
sync:
  enabled: true
  interval: 0s
`},
		{"definition file missing", `
guild_id: "123"
definition_path: nope.jsonc
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeGuildFiles(t, tt.yaml)
			_, _, err := LoadGuildConfig(path)
			require.Error(t, err)
			assert.True(t, shared.IsConfig(err), "expected a config error, got %v", err)
		})
	}
}

func TestLoadGuildConfig_FileMissing(t *testing.T) {
	_, _, err := LoadGuildConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, shared.IsConfig(err))
}
