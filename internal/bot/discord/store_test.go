package discord

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := writeGuildFiles(t, `
guild_id: "123"
definition_path: badges.jsonc
badge_roles:
  Champion: "111"
sync:
  enabled: true
  interval: 30m
`)
	store, err := OpenStore(path)
	require.NoError(t, err)
	return store
}

func TestStoreMapRole(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.MapRole("Elite", "222"))
	assert.Equal(t, "222", store.Snapshot().BadgeRoles["Elite"])

	// The change survives a reload.
	reopened, err := OpenStore(store.path)
	require.NoError(t, err)
	assert.Equal(t, "222", reopened.Snapshot().BadgeRoles["Elite"])
	assert.Equal(t, "111", reopened.Snapshot().BadgeRoles["Champion"])

	err = store.MapRole("Nonexistent", "333")
	require.Error(t, err)
	assert.True(t, shared.IsConfig(err))
}

func TestStoreUnmapRole(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.UnmapRole("Champion"))
	assert.NotContains(t, store.Snapshot().BadgeRoles, "Champion")

	reopened, err := OpenStore(store.path)
	require.NoError(t, err)
	assert.NotContains(t, reopened.Snapshot().BadgeRoles, "Champion")

	err = store.UnmapRole("Champion")
	require.Error(t, err)
	assert.True(t, shared.IsConfig(err))
}

func TestStoreSetDryRun(t *testing.T) {
	store := openTestStore(t)
	assert.False(t, store.Snapshot().Sync.DryRun)

	require.NoError(t, store.SetDryRun(true))
	assert.True(t, store.Snapshot().Sync.DryRun)

	reopened, err := OpenStore(store.path)
	require.NoError(t, err)
	snap := reopened.Snapshot()
	assert.True(t, snap.Sync.DryRun)
	// The rest of the config survives the YAML round trip.
	assert.True(t, snap.Sync.Enabled)
	assert.Equal(t, "123", snap.GuildID)
}

func TestStoreRedefine(t *testing.T) {
	store := openTestStore(t)

	// Champion stays mapped, so the new document must keep it.
	newDoc := strings.Replace(testDefinition, `"name": "Elite"`, `"name": "Grandmaster"`, 1)
	def, err := store.Redefine([]byte(newDoc))
	require.NoError(t, err)
	assert.NotNil(t, def.Badge("Grandmaster"))
	assert.Same(t, def, store.Definition())

	written, err := os.ReadFile(store.defPath)
	require.NoError(t, err)
	assert.Equal(t, newDoc, string(written))
}

func TestStoreRedefine_MappedBadgeRemoved(t *testing.T) {
	store := openTestStore(t)
	before := store.Definition()

	newDoc := strings.Replace(testDefinition, `"name": "Champion"`, `"name": "Renamed"`, 1)
	_, err := store.Redefine([]byte(newDoc))
	require.Error(t, err)
	assert.True(t, shared.IsConfig(err))
	assert.Same(t, before, store.Definition())
}

func TestStoreRedefine_InvalidDocument(t *testing.T) {
	store := openTestStore(t)
	before := store.Definition()

	_, err := store.Redefine([]byte(`{"badges": []}`))
	require.Error(t, err)
	assert.Same(t, before, store.Definition())
}

func TestStoreSnapshotIsolation(t *testing.T) {
	store := openTestStore(t)

	snap := store.Snapshot()
	snap.BadgeRoles["Champion"] = "tampered"

	assert.Equal(t, "111", store.Snapshot().BadgeRoles["Champion"])
}
