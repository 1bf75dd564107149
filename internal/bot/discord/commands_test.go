package discord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/p2community/badge-hub/internal/domain/analysis"
	"github.com/p2community/badge-hub/internal/domain/definition"
)

func TestAccountLine(t *testing.T) {
	acc := analysis.ExternalAccount{
		Platform: definition.PlatformSrcom,
		ID:       "abc",
		Name:     "runner",
		Weblink:  "https://www.speedrun.com/user/runner",
	}
	assert.Equal(t, "speedrun.com: [runner](https://www.speedrun.com/user/runner)", accountLine(acc))

	// Without a weblink the name is shown unlinked; a URL rebuilt from the
	// display name can point nowhere.
	acc.Weblink = ""
	assert.Equal(t, "speedrun.com: runner", accountLine(acc))

	cmAcc := analysis.ExternalAccount{
		Platform: definition.PlatformCM,
		ID:       "76561198000000001",
		Name:     "player",
	}
	assert.Equal(t, "challenge mode: [player](https://board.portal2.sr/profile/76561198000000001)", accountLine(cmAcc))
}

func TestDescribeMet_Manual(t *testing.T) {
	b := &Bot{}
	met := analysis.MetRequirement{
		Requirement: &definition.RequirementDefinition{Type: definition.RequirementManual},
		Cause: analysis.ManualCause{
			AssignedBy: "300",
			AssignedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	assert.Equal(t, "Manually assigned (granted by <@300> on 2026-03-01)",
		b.describeMet(context.Background(), met))

	met.Cause = analysis.ManualCause{}
	assert.Equal(t, "Manually assigned", b.describeMet(context.Background(), met))
}
