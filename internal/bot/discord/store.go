package discord

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GUILD CONFIG STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store holds a guild's live configuration and badge definition, persisting
// mutations back to the files they were loaded from. All methods are safe
// for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	defPath string
	cfg     *GuildConfig
	def     *definition.RoleDefinition
}

// OpenStore loads the guild config and its badge definition from disk.
func OpenStore(path string) (*Store, error) {
	cfg, def, defPath, err := loadGuildConfig(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, defPath: defPath, cfg: cfg, def: def}, nil
}

// Snapshot returns a copy of the current guild config.
func (s *Store) Snapshot() GuildConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Snapshot()
}

// Definition returns the current badge definition. Callers must not mutate
// it; Redefine swaps in a fresh instance instead.
func (s *Store) Definition() *definition.RoleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// MapRole maps a badge to a Discord role and persists the change. The badge
// must exist in the current definition.
func (s *Store) MapRole(badge, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.def.Badge(badge) == nil {
		return shared.NewDomainError("discord", "MapRole", shared.ErrConfig,
			fmt.Sprintf("unknown badge %q", badge))
	}

	if s.cfg.BadgeRoles == nil {
		s.cfg.BadgeRoles = make(map[string]string)
	}
	s.cfg.BadgeRoles[badge] = roleID
	return s.save()
}

// UnmapRole removes a badge's role mapping and persists the change.
func (s *Store) UnmapRole(badge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cfg.BadgeRoles[badge]; !ok {
		return shared.NewDomainError("discord", "UnmapRole", shared.ErrConfig,
			fmt.Sprintf("badge %q has no role mapping", badge))
	}
	delete(s.cfg.BadgeRoles, badge)
	return s.save()
}

// SetDryRun toggles dry-run mode for role sync and persists the change.
func (s *Store) SetDryRun(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Sync.DryRun = enabled
	return s.save()
}

// Redefine replaces the badge definition with a new document. The document
// is validated first and existing role mappings must still resolve; a
// mapping whose badge disappeared has to be unmapped before redefining.
// On success the document is written to the definition path.
func (s *Store) Redefine(data []byte) (*definition.RoleDefinition, error) {
	def, err := definition.ParseRoleDefinition(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for badge := range s.cfg.BadgeRoles {
		if def.Badge(badge) == nil {
			return nil, shared.NewDomainError("discord", "Redefine", shared.ErrConfig,
				fmt.Sprintf("badge %q is mapped to a role but absent from the new definition", badge))
		}
	}

	if err := os.WriteFile(s.defPath, data, 0o644); err != nil {
		return nil, shared.WrapError("discord", "Redefine", shared.ErrConfig,
			"writing badge definition document", err)
	}

	s.def = def
	return def, nil
}

// save persists the guild config. Callers hold the write lock.
func (s *Store) save() error {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return shared.WrapError("discord", "save", shared.ErrConfig,
			"encoding guild config", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return shared.WrapError("discord", "save", shared.ErrConfig,
			"writing guild config", err)
	}
	return nil
}
