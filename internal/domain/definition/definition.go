// Package definition models badge definition documents: the human-authored
// description of which badges exist and which requirements satisfy them.
// A RoleDefinition is immutable once loaded and must outlive every analysis
// result derived from it.
package definition

import (
	"fmt"
	"sort"
	"strings"
)

// Platform identifies an external ranking provider.
type Platform string

const (
	// PlatformSrcom is the speedrun.com full-game leaderboard provider.
	PlatformSrcom Platform = "srcom"

	// PlatformCM is the board.portal2.sr challenge-mode aggregate provider.
	PlatformCM Platform = "cm"
)

// PartnerRestriction constrains co-players of a multiplayer run.
type PartnerRestriction string

const (
	// PartnerRankGte requires every co-player's own unrestricted best run to
	// rank at least as well as the shared run being evaluated.
	PartnerRankGte PartnerRestriction = "rank-gte"
)

// CMLeaderboard names one of the aggregate challenge-mode boards.
type CMLeaderboard string

const (
	CMOverall      CMLeaderboard = "overall"
	CMSinglePlayer CMLeaderboard = "sp"
	CMCoop         CMLeaderboard = "coop"
)

// RequirementType tags the requirement variant. The set is closed: every
// switch over it must handle all values and reject anything else.
type RequirementType string

const (
	RequirementManual RequirementType = "manual"
	RequirementRank   RequirementType = "rank"
	RequirementTime   RequirementType = "time"
	RequirementPoints RequirementType = "points"
	RequirementRecent RequirementType = "recent"
)

// VariableDefinition selects one value of one leaderboard variable.
type VariableDefinition struct {
	Variable string `json:"variable"`
	Choice   string `json:"choice"`
}

// RequirementDefinition is a single testable condition. The Type field
// selects the variant; the remaining fields are meaningful per variant:
//
//	manual:  no fields
//	rank:    Platform, Game, Category, Variables?, Top, Partner?
//	time:    Platform, Game, Category, Variables?, Time, Partner?
//	points:  Leaderboard, Points
//	recent:  Platform, Game?, Category?, Variables?, Months
type RequirementDefinition struct {
	Type RequirementType `json:"type"`

	Platform  Platform             `json:"platform,omitempty"`
	Game      string               `json:"game,omitempty"`
	Category  string               `json:"category,omitempty"`
	Variables []VariableDefinition `json:"variables,omitempty"`

	Top     uint64             `json:"top,omitempty"`
	Time    string             `json:"time,omitempty"`
	Partner PartnerRestriction `json:"partner,omitempty"`

	Leaderboard CMLeaderboard `json:"leaderboard,omitempty"`
	Points      uint64        `json:"points,omitempty"`

	Months uint64 `json:"months,omitempty"`
}

// Key returns a canonical identity string for the requirement. Two
// syntactically identical requirements produce the same key even across
// different badges, so keys are safe as map/cache keys. Variable selections
// are sorted by variable id, making the key order-independent.
func (r *RequirementDefinition) Key() string {
	var b strings.Builder
	b.WriteString(string(r.Type))

	switch r.Type {
	case RequirementManual:
	case RequirementRank:
		fmt.Fprintf(&b, "|%s|%s|%s|%s|top=%d|partner=%s", r.Platform, r.Game, r.Category, r.variableKey(), r.Top, r.Partner)
	case RequirementTime:
		fmt.Fprintf(&b, "|%s|%s|%s|%s|time=%s|partner=%s", r.Platform, r.Game, r.Category, r.variableKey(), r.Time, r.Partner)
	case RequirementPoints:
		fmt.Fprintf(&b, "|%s|points=%d", r.Leaderboard, r.Points)
	case RequirementRecent:
		fmt.Fprintf(&b, "|%s|%s|%s|%s|months=%d", r.Platform, r.Game, r.Category, r.variableKey(), r.Months)
	}

	return b.String()
}

// variableKey renders the variable selection sorted by variable id.
func (r *RequirementDefinition) variableKey() string {
	if len(r.Variables) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(r.Variables))
	for _, v := range r.Variables {
		pairs = append(pairs, v.Variable+"="+v.Choice)
	}
	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}

// VariableMap returns the variable selection as a map.
func (r *RequirementDefinition) VariableMap() map[string]string {
	if len(r.Variables) == 0 {
		return nil
	}

	m := make(map[string]string, len(r.Variables))
	for _, v := range r.Variables {
		m[v.Variable] = v.Choice
	}
	return m
}

// BadgeDefinition is a named badge with its requirements. Satisfying any one
// requirement satisfies the badge.
type BadgeDefinition struct {
	Name         string                  `json:"name"`
	Requirements []RequirementDefinition `json:"requirements"`
}

// CanAutoremove reports whether the badge's role may be removed
// automatically. Badges containing a manual requirement must never be
// auto-revoked.
func (b *BadgeDefinition) CanAutoremove() bool {
	for i := range b.Requirements {
		if b.Requirements[i].Type == RequirementManual {
			return false
		}
	}
	return true
}

// RoleDefinition is an ordered sequence of badges loaded from one document.
type RoleDefinition struct {
	Badges []BadgeDefinition `json:"badges"`
}

// Badge returns the badge with the given name, or nil.
func (d *RoleDefinition) Badge(name string) *BadgeDefinition {
	for i := range d.Badges {
		if d.Badges[i].Name == name {
			return &d.Badges[i]
		}
	}
	return nil
}
