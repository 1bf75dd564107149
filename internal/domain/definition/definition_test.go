package definition

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

func TestRequirementKey_VariableOrderIndependent(t *testing.T) {
	a := RequirementDefinition{
		Type:     RequirementRank,
		Platform: PlatformSrcom,
		Game:     "om1mw4d2",
		Category: "jzd33ndn",
		Top:      10,
		Variables: []VariableDefinition{
			{Variable: "r8rg67rn", Choice: "21d4zvp1"},
			{Variable: "wl3d9gy8", Choice: "4qyxop3l"},
		},
	}
	b := a
	b.Variables = []VariableDefinition{
		{Variable: "wl3d9gy8", Choice: "4qyxop3l"},
		{Variable: "r8rg67rn", Choice: "21d4zvp1"},
	}

	assert.Equal(t, a.Key(), b.Key())
}

func TestRequirementKey_DistinguishesVariants(t *testing.T) {
	rank := RequirementDefinition{Type: RequirementRank, Platform: PlatformSrcom, Game: "g", Category: "c", Top: 5}
	time := RequirementDefinition{Type: RequirementTime, Platform: PlatformSrcom, Game: "g", Category: "c", Time: "PT1H"}
	points := RequirementDefinition{Type: RequirementPoints, Leaderboard: CMOverall, Points: 5000}
	recent := RequirementDefinition{Type: RequirementRecent, Platform: PlatformCM, Months: 6}

	keys := map[string]bool{}
	for _, r := range []RequirementDefinition{rank, time, points, recent} {
		keys[r.Key()] = true
	}
	assert.Len(t, keys, 4)
}

func TestRequirementKey_TopMatters(t *testing.T) {
	a := RequirementDefinition{Type: RequirementRank, Platform: PlatformSrcom, Game: "g", Category: "c", Top: 1}
	b := a
	b.Top = 10

	assert.NotEqual(t, a.Key(), b.Key())
}

func TestBadgeCanAutoremove(t *testing.T) {
	auto := BadgeDefinition{
		Name:         "Champion",
		Requirements: []RequirementDefinition{{Type: RequirementRank, Platform: PlatformSrcom, Game: "g", Category: "c", Top: 1}},
	}
	manual := BadgeDefinition{
		Name: "Veteran",
		Requirements: []RequirementDefinition{
			{Type: RequirementRank, Platform: PlatformSrcom, Game: "g", Category: "c", Top: 1},
			{Type: RequirementManual},
		},
	}

	assert.True(t, auto.CanAutoremove())
	assert.False(t, manual.CanAutoremove())
}

func TestParseRoleDefinition(t *testing.T) {
	doc := []byte(`{
		// Comments and trailing commas are allowed.
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
					{"type": "time", "platform": "srcom", "game": "om1mw4d2", "category": "jzd33ndn", "time": "PT1H30M"},
				],
			},
		],
	}`)

	def, err := ParseRoleDefinition(doc)
	require.NoError(t, err)
	require.Len(t, def.Badges, 2)

	assert.Equal(t, "Champion", def.Badges[0].Name)
	assert.Equal(t, RequirementRank, def.Badges[0].Requirements[0].Type)
	assert.Equal(t, uint64(12000), def.Badges[1].Requirements[0].Points)

	assert.NotNil(t, def.Badge("Elite"))
	assert.Nil(t, def.Badge("Unknown"))
}

func TestParseRoleDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{{`},
		{"no badges", `{"badges": []}`},
		{"unnamed badge", `{"badges": [{"name": "", "requirements": [{"type": "manual"}]}]}`},
		{"duplicate badge", `{"badges": [
			{"name": "A", "requirements": [{"type": "manual"}]},
			{"name": "A", "requirements": [{"type": "manual"}]}
		]}`},
		{"no requirements", `{"badges": [{"name": "A", "requirements": []}]}`},
		{"rank without top", `{"badges": [{"name": "A", "requirements": [
			{"type": "rank", "platform": "srcom", "game": "g", "category": "c"}
		]}]}`},
		{"rank on cm", `{"badges": [{"name": "A", "requirements": [
			{"type": "rank", "platform": "cm", "game": "g", "category": "c", "top": 1}
		]}]}`},
		{"bad partner", `{"badges": [{"name": "A", "requirements": [
			{"type": "rank", "platform": "srcom", "game": "g", "category": "c", "top": 1, "partner": "same-team"}
		]}]}`},
		{"bad time", `{"badges": [{"name": "A", "requirements": [
			{"type": "time", "platform": "srcom", "game": "g", "category": "c", "time": "fast"}
		]}]}`},
		{"bad leaderboard", `{"badges": [{"name": "A", "requirements": [
			{"type": "points", "leaderboard": "bonus", "points": 100}
		]}]}`},
		{"zero points", `{"badges": [{"name": "A", "requirements": [
			{"type": "points", "leaderboard": "overall", "points": 0}
		]}]}`},
		{"recent without months", `{"badges": [{"name": "A", "requirements": [
			{"type": "recent", "platform": "cm"}
		]}]}`},
		{"recent srcom without board", `{"badges": [{"name": "A", "requirements": [
			{"type": "recent", "platform": "srcom", "months": 6}
		]}]}`},
		{"unknown type", `{"badges": [{"name": "A", "requirements": [{"type": "vibes"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoleDefinition([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, shared.IsConfig(err), "expected a config error, got %v", err)
		})
	}
}

// stubNames resolves every id to a fixed label for formatting tests.
type stubNames struct{}

func (stubNames) GameName(_ context.Context, game string) (string, error) {
	return "Portal 2", nil
}

func (stubNames) CategoryName(_ context.Context, category string) (string, error) {
	return "Single Player", nil
}

func (stubNames) VariableChoiceLabel(_ context.Context, variable, choice string) (string, error) {
	return fmt.Sprintf("%s=%s", variable, choice), nil
}

func TestRequirementFormat(t *testing.T) {
	ctx := context.Background()

	rank := RequirementDefinition{Type: RequirementRank, Platform: PlatformSrcom, Game: "g", Category: "c", Top: 10}
	got, err := rank.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "Top 10 in Portal 2 - Single Player", got)

	rank.Variables = []VariableDefinition{{Variable: "glitch", Choice: "no"}}
	got, err = rank.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "Top 10 in Portal 2 - Single Player (glitch=no)", got)

	tm := RequirementDefinition{Type: RequirementTime, Platform: PlatformSrcom, Game: "g", Category: "c", Time: "PT1H30M"}
	got, err = tm.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "PT1H30M or faster in Portal 2 - Single Player", got)

	points := RequirementDefinition{Type: RequirementPoints, Leaderboard: CMOverall, Points: 12000}
	got, err = points.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "12000+ points on the overall CM board", got)

	recent := RequirementDefinition{Type: RequirementRecent, Platform: PlatformCM, Months: 6}
	got, err = recent.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "CM activity within the last 6 months", got)

	manual := RequirementDefinition{Type: RequirementManual}
	got, err = manual.Format(ctx, stubNames{})
	require.NoError(t, err)
	assert.Equal(t, "Manually assigned", got)
}

func TestRequirementShortDescription(t *testing.T) {
	rank := RequirementDefinition{Type: RequirementRank, Platform: PlatformSrcom, Game: "om1mw4d2", Category: "jzd33ndn", Top: 3}
	assert.Equal(t, "top 3 on om1mw4d2/jzd33ndn", rank.ShortDescription())

	points := RequirementDefinition{Type: RequirementPoints, Leaderboard: CMCoop, Points: 9000}
	assert.Equal(t, "9000+ points (coop)", points.ShortDescription())
}
