// Package analysis holds the result types produced by evaluating badge
// definitions against a user's linked accounts. Values in this package are
// plain data: they carry no provider handles and can be aggregated, rendered
// or exported long after the analysis that produced them.
package analysis

import (
	"time"

	"github.com/p2community/badge-hub/internal/domain/definition"
)

// ExternalAccount is one linked account on an external platform.
type ExternalAccount struct {
	Platform definition.Platform
	ID       string
	Name     string

	// Weblink is the account's public profile URL, when the provider
	// reports one.
	Weblink string
}

// Cause explains why a requirement was considered met. The set of
// implementations is closed; rendering code switches over them.
type Cause interface {
	isCause()
}

// ManualCause marks requirements satisfied by a manual role assignment and
// carries the assignment row's audit fields.
type ManualCause struct {
	AssignedBy string
	AssignedAt time.Time
}

// FullgameRunCause carries the run that satisfied a rank, time or recency
// requirement. Date is zero for undated runs.
type FullgameRunCause struct {
	RunID string
	Place uint64
	Time  time.Duration
	Link  string
	Date  time.Time
}

// AggregateScoreCause carries the challenge-mode score that satisfied a
// points requirement.
type AggregateScoreCause struct {
	Leaderboard definition.CMLeaderboard
	Points      uint64
	Rank        uint64
}

// RecentActivityCause carries the evidence for a recency requirement. Date
// is zero for challenge-mode activity, where the provider only reports that
// the account was active within the window.
type RecentActivityCause struct {
	Platform definition.Platform
	Date     time.Time
}

func (ManualCause) isCause()         {}
func (FullgameRunCause) isCause()    {}
func (AggregateScoreCause) isCause() {}
func (RecentActivityCause) isCause() {}

// MetRequirement pairs a satisfied requirement with its cause.
type MetRequirement struct {
	Requirement *definition.RequirementDefinition
	Cause       Cause
}

// AnalyzedBadge is the evaluation result for one badge. Every met
// requirement is recorded, not just the first.
type AnalyzedBadge struct {
	Definition      *definition.BadgeDefinition
	MetRequirements []MetRequirement
}

// Met reports whether the badge is earned. A badge is earned when at least
// one of its requirements is met.
func (b *AnalyzedBadge) Met() bool {
	return len(b.MetRequirements) > 0
}

// AnalyzedUser is the complete evaluation result for one Discord user.
type AnalyzedUser struct {
	UserID   string
	Username string
	Accounts []ExternalAccount
	Badges   []AnalyzedBadge
}

// MetBadges returns the badges the user earned, preserving definition order.
func (u *AnalyzedUser) MetBadges() []*AnalyzedBadge {
	var met []*AnalyzedBadge
	for i := range u.Badges {
		if u.Badges[i].Met() {
			met = append(met, &u.Badges[i])
		}
	}
	return met
}

// Badge returns the evaluation result for the named badge, or nil.
func (u *AnalyzedUser) Badge(name string) *AnalyzedBadge {
	for i := range u.Badges {
		if u.Badges[i].Definition.Name == name {
			return &u.Badges[i]
		}
	}
	return nil
}
