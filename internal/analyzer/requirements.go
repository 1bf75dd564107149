package analyzer

import (
	"context"
	"fmt"

	"github.com/p2community/badge-hub/internal/boards/cm"
	"github.com/p2community/badge-hub/internal/boards/srcom"
	"github.com/p2community/badge-hub/internal/domain/account"
	"github.com/p2community/badge-hub/internal/domain/analysis"
	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/pkg/timeutil"
)

// evaluateRequirement checks one requirement against the user's accounts,
// in link order, stopping at the first account that satisfies it. "No
// satisfying run" is a normal miss, not an error.
func (a *Analyzer) evaluateRequirement(
	ctx context.Context,
	req *definition.RequirementDefinition,
	accounts []analysis.ExternalAccount,
	manual *account.ManualAssignment,
) (analysis.Cause, bool, error) {
	switch req.Type {
	case definition.RequirementManual:
		if manual != nil {
			return analysis.ManualCause{
				AssignedBy: manual.AssignedBy,
				AssignedAt: manual.AssignedAt,
			}, true, nil
		}
		return nil, false, nil

	case definition.RequirementRank:
		return a.evaluateRank(ctx, req, accounts)

	case definition.RequirementTime:
		return a.evaluateTime(ctx, req, accounts)

	case definition.RequirementPoints:
		return a.evaluatePoints(ctx, req, accounts)

	case definition.RequirementRecent:
		if req.Platform == definition.PlatformCM {
			return a.evaluateRecentCM(ctx, req, accounts)
		}
		return a.evaluateRecentSrcom(ctx, req, accounts)

	default:
		return nil, false, fmt.Errorf("unknown requirement type %q", req.Type)
	}
}

func (a *Analyzer) evaluateRank(ctx context.Context, req *definition.RequirementDefinition, accounts []analysis.ExternalAccount) (analysis.Cause, bool, error) {
	for _, acc := range accounts {
		if acc.Platform != definition.PlatformSrcom {
			continue
		}

		board, err := a.srcom.Board(ctx, req)
		if err != nil {
			return nil, false, err
		}

		run, ok := board.HighestRun(acc.ID, req.Partner)
		if ok && run.Place <= req.Top {
			return runCause(run), true, nil
		}
	}
	return nil, false, nil
}

func (a *Analyzer) evaluateTime(ctx context.Context, req *definition.RequirementDefinition, accounts []analysis.ExternalAccount) (analysis.Cause, bool, error) {
	// Parsed once per evaluation; the definition was validated at load, so
	// a parse failure here means the definition changed underneath us.
	limit, err := definition.ParseISODuration(req.Time)
	if err != nil {
		return nil, false, err
	}

	for _, acc := range accounts {
		if acc.Platform != definition.PlatformSrcom {
			continue
		}

		board, err := a.srcom.Board(ctx, req)
		if err != nil {
			return nil, false, err
		}

		run, ok := board.HighestRun(acc.ID, req.Partner)
		if ok && run.Run.PrimaryDuration() <= limit {
			return runCause(run), true, nil
		}
	}
	return nil, false, nil
}

func (a *Analyzer) evaluatePoints(ctx context.Context, req *definition.RequirementDefinition, accounts []analysis.ExternalAccount) (analysis.Cause, bool, error) {
	for _, acc := range accounts {
		if acc.Platform != definition.PlatformCM {
			continue
		}

		steamID, err := cm.ParseProfileID(acc.ID)
		if err != nil {
			return nil, false, err
		}

		score, ok, err := a.cm.Score(ctx, req.Leaderboard, steamID)
		if err != nil {
			return nil, false, err
		}
		if ok && score.Score >= req.Points {
			return analysis.AggregateScoreCause{
				Leaderboard: req.Leaderboard,
				Points:      score.Score,
				Rank:        score.PlayerRank,
			}, true, nil
		}
	}
	return nil, false, nil
}

// evaluateRecentSrcom checks the date of the user's highest unrestricted
// run. Runs with neither a run date nor a submission timestamp never count
// as recent.
func (a *Analyzer) evaluateRecentSrcom(ctx context.Context, req *definition.RequirementDefinition, accounts []analysis.ExternalAccount) (analysis.Cause, bool, error) {
	now := a.now()
	for _, acc := range accounts {
		if acc.Platform != definition.PlatformSrcom {
			continue
		}

		board, err := a.srcom.Board(ctx, req)
		if err != nil {
			return nil, false, err
		}

		run, ok := board.HighestRun(acc.ID, "")
		if !ok {
			continue
		}
		date, dated := run.Run.ParsedDate()
		if dated && timeutil.WithinTrailingMonths(date, req.Months, now) {
			return runCause(run), true, nil
		}
	}
	return nil, false, nil
}

func (a *Analyzer) evaluateRecentCM(ctx context.Context, req *definition.RequirementDefinition, accounts []analysis.ExternalAccount) (analysis.Cause, bool, error) {
	for _, acc := range accounts {
		if acc.Platform != definition.PlatformCM {
			continue
		}

		steamID, err := cm.ParseProfileID(acc.ID)
		if err != nil {
			return nil, false, err
		}

		active, err := a.cm.IsActive(ctx, req.Months, steamID)
		if err != nil {
			return nil, false, err
		}
		if active {
			return analysis.RecentActivityCause{Platform: definition.PlatformCM}, true, nil
		}
	}
	return nil, false, nil
}

func runCause(run *srcom.PlacedRun) analysis.Cause {
	cause := analysis.FullgameRunCause{
		RunID: run.Run.ID,
		Place: run.Place,
		Time:  run.Run.PrimaryDuration(),
		Link:  run.Run.Weblink,
	}
	if date, ok := run.Run.ParsedDate(); ok {
		cause.Date = date
	}
	return cause
}
