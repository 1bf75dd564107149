package definition

import (
	"context"
	"fmt"
)

// NameSource resolves provider ids to display names. Implemented by the
// srcom board state; formatting goes through it so that embeds and report
// headers show "Portal 2 - Glitchless" instead of raw ids.
type NameSource interface {
	GameName(ctx context.Context, game string) (string, error)
	CategoryName(ctx context.Context, category string) (string, error)
	VariableChoiceLabel(ctx context.Context, variable, choice string) (string, error)
}

// Format renders the requirement as a human-readable description, resolving
// ids through names. The switch is exhaustive over RequirementType.
func (r *RequirementDefinition) Format(ctx context.Context, names NameSource) (string, error) {
	switch r.Type {
	case RequirementManual:
		return "Manually assigned", nil

	case RequirementRank:
		board, err := r.formatBoard(ctx, names)
		if err != nil {
			return "", err
		}
		if r.Partner == PartnerRankGte {
			return fmt.Sprintf("Top %d (rank-restricted partners) in %s", r.Top, board), nil
		}
		return fmt.Sprintf("Top %d in %s", r.Top, board), nil

	case RequirementTime:
		board, err := r.formatBoard(ctx, names)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s or faster in %s", r.Time, board), nil

	case RequirementPoints:
		return fmt.Sprintf("%d+ points on the %s CM board", r.Points, r.Leaderboard), nil

	case RequirementRecent:
		if r.Platform == PlatformCM {
			return fmt.Sprintf("CM activity within the last %d months", r.Months), nil
		}
		board, err := r.formatBoard(ctx, names)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("A run in %s within the last %d months", board, r.Months), nil

	default:
		return "", fmt.Errorf("unknown requirement type %q", r.Type)
	}
}

// formatBoard renders "Game - Category (Choice, Choice)".
func (r *RequirementDefinition) formatBoard(ctx context.Context, names NameSource) (string, error) {
	game, err := names.GameName(ctx, r.Game)
	if err != nil {
		return "", err
	}
	category, err := names.CategoryName(ctx, r.Category)
	if err != nil {
		return "", err
	}

	board := fmt.Sprintf("%s - %s", game, category)
	if len(r.Variables) == 0 {
		return board, nil
	}

	labels := make([]string, 0, len(r.Variables))
	for _, v := range r.Variables {
		label, err := names.VariableChoiceLabel(ctx, v.Variable, v.Choice)
		if err != nil {
			return "", err
		}
		labels = append(labels, label)
	}

	board += " ("
	for i, label := range labels {
		if i > 0 {
			board += ", "
		}
		board += label
	}
	board += ")"

	return board, nil
}

// ShortDescription renders the requirement without network access, suitable
// for Discord audit-log reasons.
func (r *RequirementDefinition) ShortDescription() string {
	switch r.Type {
	case RequirementManual:
		return "manual"
	case RequirementRank:
		return fmt.Sprintf("top %d on %s/%s", r.Top, r.Game, r.Category)
	case RequirementTime:
		return fmt.Sprintf("%s or faster on %s/%s", r.Time, r.Game, r.Category)
	case RequirementPoints:
		return fmt.Sprintf("%d+ points (%s)", r.Points, r.Leaderboard)
	case RequirementRecent:
		if r.Platform == PlatformCM {
			return fmt.Sprintf("CM activity in %d months", r.Months)
		}
		return fmt.Sprintf("run on %s/%s in %d months", r.Game, r.Category, r.Months)
	default:
		return string(r.Type)
	}
}
