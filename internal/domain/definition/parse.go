package definition

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ParseRoleDefinition loads a badge definition document. Documents are
// written in relaxed JSON (comments and trailing commas allowed); a malformed
// document fails the whole load.
func ParseRoleDefinition(data []byte) (*RoleDefinition, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, shared.WrapError("definition", "Parse", shared.ErrConfig,
			"invalid relaxed-JSON document", err)
	}

	var def RoleDefinition
	if err := json.Unmarshal(std, &def); err != nil {
		return nil, shared.WrapError("definition", "Parse", shared.ErrConfig,
			"document does not match the definition schema", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the whole definition for structural problems.
func (d *RoleDefinition) Validate() error {
	if len(d.Badges) == 0 {
		return shared.NewDomainError("definition", "Validate", shared.ErrConfig,
			"definition contains no badges")
	}

	names := make(map[string]bool, len(d.Badges))
	for i := range d.Badges {
		badge := &d.Badges[i]
		if badge.Name == "" {
			return shared.NewDomainError("definition", "Validate", shared.ErrConfig,
				fmt.Sprintf("badge %d has no name", i))
		}
		if names[badge.Name] {
			return shared.NewDomainError("definition", "Validate", shared.ErrConfig,
				fmt.Sprintf("duplicate badge name %q", badge.Name))
		}
		names[badge.Name] = true

		if len(badge.Requirements) == 0 {
			return shared.NewDomainError("definition", "Validate", shared.ErrConfig,
				fmt.Sprintf("badge %q has no requirements", badge.Name))
		}
		for j := range badge.Requirements {
			if err := badge.Requirements[j].Validate(); err != nil {
				return shared.WrapError("definition", "Validate", shared.ErrConfig,
					fmt.Sprintf("badge %q requirement %d", badge.Name, j), err)
			}
		}
	}

	return nil
}

// Validate checks a single requirement for per-variant field problems.
func (r *RequirementDefinition) Validate() error {
	switch r.Type {
	case RequirementManual:
		return nil

	case RequirementRank:
		if r.Platform != PlatformSrcom {
			return fmt.Errorf("rank requirements support platform %q only, got %q", PlatformSrcom, r.Platform)
		}
		if r.Game == "" || r.Category == "" {
			return fmt.Errorf("rank requirements need both game and category")
		}
		if r.Top == 0 {
			return fmt.Errorf("rank requirements need top > 0")
		}
		return r.validatePartner()

	case RequirementTime:
		if r.Platform != PlatformSrcom {
			return fmt.Errorf("time requirements support platform %q only, got %q", PlatformSrcom, r.Platform)
		}
		if r.Game == "" || r.Category == "" {
			return fmt.Errorf("time requirements need both game and category")
		}
		if _, err := ParseISODuration(r.Time); err != nil {
			return err
		}
		return r.validatePartner()

	case RequirementPoints:
		switch r.Leaderboard {
		case CMOverall, CMSinglePlayer, CMCoop:
		default:
			return fmt.Errorf("unknown points leaderboard %q", r.Leaderboard)
		}
		if r.Points == 0 {
			return fmt.Errorf("points requirements need points > 0")
		}
		return nil

	case RequirementRecent:
		switch r.Platform {
		case PlatformSrcom:
			if r.Game == "" || r.Category == "" {
				return fmt.Errorf("recent srcom requirements need both game and category")
			}
		case PlatformCM:
		default:
			return fmt.Errorf("unknown recent platform %q", r.Platform)
		}
		if r.Months == 0 {
			return fmt.Errorf("recent requirements need months > 0")
		}
		return nil

	default:
		return fmt.Errorf("unknown requirement type %q", r.Type)
	}
}

func (r *RequirementDefinition) validatePartner() error {
	switch r.Partner {
	case "", PartnerRankGte:
		return nil
	default:
		return fmt.Errorf("unknown partner restriction %q", r.Partner)
	}
}
