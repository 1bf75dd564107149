package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/p2community/badge-hub/internal/domain/definition"
)

// Report aggregates the results of a full-guild analysis pass.
type Report struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	TotalUsers      int
	UsersWithBadges int

	// UsersByPlatform maps a platform to the number of users with at least
	// one linked account on it.
	UsersByPlatform map[definition.Platform]int

	// BadgeCounts maps badge name to the number of users who earned it.
	BadgeCounts map[string]int

	// RequirementCounts maps a requirement key to the number of users who
	// met it. Requirements shared between badges share one counter.
	RequirementCounts map[string]int

	Users []*AnalyzedUser
}

// NewReport creates an empty report stamped with a fresh id.
func NewReport(startedAt time.Time) *Report {
	return &Report{
		ID:                uuid.New(),
		StartedAt:         startedAt,
		UsersByPlatform:   make(map[definition.Platform]int),
		BadgeCounts:       make(map[string]int),
		RequirementCounts: make(map[string]int),
	}
}

// Add folds one analyzed user into the report.
func (r *Report) Add(user *AnalyzedUser) {
	r.TotalUsers++
	r.Users = append(r.Users, user)

	platforms := map[definition.Platform]bool{}
	for _, acc := range user.Accounts {
		if !platforms[acc.Platform] {
			platforms[acc.Platform] = true
			r.UsersByPlatform[acc.Platform]++
		}
	}

	seen := map[string]bool{}
	anyMet := false
	for i := range user.Badges {
		badge := &user.Badges[i]
		if !badge.Met() {
			continue
		}
		anyMet = true
		r.BadgeCounts[badge.Definition.Name]++

		for _, met := range badge.MetRequirements {
			key := met.Requirement.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			r.RequirementCounts[key]++
		}
	}
	if anyMet {
		r.UsersWithBadges++
	}
}

// Finish stamps the completion time.
func (r *Report) Finish(finishedAt time.Time) {
	r.FinishedAt = finishedAt
}

// WriteCSV exports one row per met requirement per user. Users with no
// earned badges get a single row with empty badge columns so the export
// still covers the full user set.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"user_id", "username", "badge", "requirement", "cause"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for _, user := range r.Users {
		wrote := false
		for i := range user.Badges {
			badge := &user.Badges[i]
			for _, met := range badge.MetRequirements {
				row := []string{
					user.UserID,
					user.Username,
					badge.Definition.Name,
					met.Requirement.ShortDescription(),
					describeCause(met.Cause),
				}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("write report row: %w", err)
				}
				wrote = true
			}
		}
		if !wrote {
			if err := cw.Write([]string{user.UserID, user.Username, "", "", ""}); err != nil {
				return fmt.Errorf("write report row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteBadgeCSV exports one badge: a row per met requirement for every user
// who earned it.
func (r *Report) WriteBadgeCSV(w io.Writer, badgeName string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"user_id", "username", "requirement", "cause"}); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for _, user := range r.Users {
		badge := user.Badge(badgeName)
		if badge == nil {
			continue
		}
		for _, met := range badge.MetRequirements {
			row := []string{
				user.UserID,
				user.Username,
				met.Requirement.ShortDescription(),
				describeCause(met.Cause),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write report row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func describeCause(c Cause) string {
	switch cause := c.(type) {
	case ManualCause:
		if cause.AssignedBy == "" {
			return "manual assignment"
		}
		return fmt.Sprintf("assigned by %s on %s", cause.AssignedBy, cause.AssignedAt.Format("2006-01-02"))
	case FullgameRunCause:
		return fmt.Sprintf("run %s, place %d, %s", cause.RunID, cause.Place, cause.Time)
	case AggregateScoreCause:
		return fmt.Sprintf("%d points on %s", cause.Points, cause.Leaderboard)
	case RecentActivityCause:
		if cause.Date.IsZero() {
			return "recent " + string(cause.Platform) + " activity"
		}
		return "run on " + cause.Date.Format("2006-01-02")
	default:
		return strconv.Quote(fmt.Sprintf("%T", c))
	}
}
