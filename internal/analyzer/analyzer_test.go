package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2community/badge-hub/internal/boards/cm"
	"github.com/p2community/badge-hub/internal/boards/srcom"
	"github.com/p2community/badge-hub/internal/domain/account"
	"github.com/p2community/badge-hub/internal/domain/analysis"
	"github.com/p2community/badge-hub/internal/domain/definition"
)

// fakeSrcom serves one canned board for every requirement.
type fakeSrcom struct {
	board *srcom.Board
	err   error
}

func (f *fakeSrcom) Board(ctx context.Context, req *definition.RequirementDefinition) (*srcom.Board, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.board, nil
}

func (f *fakeSrcom) UserProfile(ctx context.Context, id string) (*srcom.User, error) {
	u := &srcom.User{ID: id, Weblink: "https://www.speedrun.com/user/runner-" + id}
	u.Names.International = "runner-" + id
	return u, nil
}

// fakeCM serves canned scores and activity flags.
type fakeCM struct {
	scores map[uint64]cm.ScoreData
	active map[uint64]bool
}

func (f *fakeCM) Score(ctx context.Context, board definition.CMLeaderboard, steamID uint64) (cm.ScoreData, bool, error) {
	s, ok := f.scores[steamID]
	return s, ok, nil
}

func (f *fakeCM) IsActive(ctx context.Context, months uint64, steamID uint64) (bool, error) {
	return f.active[steamID], nil
}

func (f *fakeCM) Profile(ctx context.Context, steamID uint64) (*cm.Profile, error) {
	return &cm.Profile{UserData: cm.ProfileUserData{Boardname: "player"}}, nil
}

type fakeConnections struct {
	byUser map[string][]account.VerifiedConnection
}

func (f *fakeConnections) ConnectionsForUser(ctx context.Context, userID string) ([]account.VerifiedConnection, error) {
	return f.byUser[userID], nil
}

func (f *fakeConnections) UsersWithConnections(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range f.byUser {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeConnections) SaveConnection(ctx context.Context, conn account.VerifiedConnection) error {
	return nil
}

func (f *fakeConnections) RemoveConnection(ctx context.Context, userID string, typ account.ConnectionType, externalID string) error {
	return nil
}

type fakeAssignments struct {
	byUser map[string][]account.ManualAssignment
}

func (f *fakeAssignments) AssignmentsForUser(ctx context.Context, userID string) ([]account.ManualAssignment, error) {
	return f.byUser[userID], nil
}

func (f *fakeAssignments) SaveAssignment(ctx context.Context, a account.ManualAssignment) error {
	return nil
}

func (f *fakeAssignments) RemoveAssignment(ctx context.Context, userID, badge string) error {
	return nil
}

func placedRun(place uint64, id, date string, players ...string) srcom.PlacedRun {
	pr := srcom.PlacedRun{Place: place}
	pr.Run.ID = id
	pr.Run.Date = date
	pr.Run.Status.Status = "verified"
	pr.Run.Times.PrimaryT = 3600
	for _, p := range players {
		pr.Run.Players = append(pr.Run.Players, srcom.RunPlayer{Rel: "user", ID: p})
	}
	return pr
}

func srcomConn(userID, externalID string) account.VerifiedConnection {
	return account.VerifiedConnection{UserID: userID, Type: account.ConnectionSrcom, ExternalID: externalID}
}

func steamConn(userID, externalID string) account.VerifiedConnection {
	return account.VerifiedConnection{UserID: userID, Type: account.ConnectionSteam, ExternalID: externalID}
}

func newAnalyzer(def *definition.RoleDefinition, sr SrcomBoards, cmb CMBoards, conns *fakeConnections, assigns *fakeAssignments) *Analyzer {
	if conns == nil {
		conns = &fakeConnections{byUser: map[string][]account.VerifiedConnection{}}
	}
	if assigns == nil {
		assigns = &fakeAssignments{}
	}
	return New(def, sr, cmb, conns, assigns, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAnalyzeUser_RankBadge(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Top10",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRank, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Top: 10,
		}},
	}}}

	sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{
		placedRun(7, "r7", "2026-05-01", "U"),
	}})}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
	}}

	a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)

	badge := user.Badge("Top10")
	require.NotNil(t, badge)
	require.True(t, badge.Met())

	cause, ok := badge.MetRequirements[0].Cause.(analysis.FullgameRunCause)
	require.True(t, ok)
	assert.Equal(t, uint64(7), cause.Place)
	assert.Equal(t, "r7", cause.RunID)

	// Tightening the threshold below the run's place fails the badge.
	def.Badges[0].Requirements[0].Top = 5
	user, err = a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.False(t, user.Badge("Top10").Met())
}

func TestAnalyzeUser_TimeBadge(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Sub70",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementTime, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Time: "PT1H10M",
		}},
	}}}

	run := placedRun(3, "r3", "2026-05-01", "U")
	run.Run.Times.PrimaryT = 4199.5
	sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{run}})}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
	}}

	a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.True(t, user.Badge("Sub70").Met())

	// 4199.5s is over a PT1H9M limit.
	def.Badges[0].Requirements[0].Time = "PT1H9M"
	user, err = a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.False(t, user.Badge("Sub70").Met())
}

func TestAnalyzeUser_PointsBadge(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Scorer",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementPoints, Leaderboard: definition.CMOverall, Points: 100,
		}},
	}}}

	cmb := &fakeCM{scores: map[uint64]cm.ScoreData{
		7656119800000001: {Score: 150, PlayerRank: 42},
	}}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {steamConn("100", "7656119800000001")},
	}}

	a := newAnalyzer(def, &fakeSrcom{}, cmb, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)

	badge := user.Badge("Scorer")
	require.True(t, badge.Met())
	cause := badge.MetRequirements[0].Cause.(analysis.AggregateScoreCause)
	assert.Equal(t, uint64(150), cause.Points)

	// 150 points fails a 200-point threshold.
	def.Badges[0].Requirements[0].Points = 200
	user, err = a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.False(t, user.Badge("Scorer").Met())
}

func TestAnalyzeUser_ManualBadge(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name:         "Veteran",
		Requirements: []definition.RequirementDefinition{{Type: definition.RequirementManual}},
	}}}

	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {steamConn("100", "7656119800000001")},
	}}

	// Without an assignment the badge is never met, whatever else the user
	// has going for them.
	a := newAnalyzer(def, &fakeSrcom{}, &fakeCM{scores: map[uint64]cm.ScoreData{
		7656119800000001: {Score: 999999},
	}}, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.Empty(t, user.MetBadges())
	assert.False(t, def.Badges[0].CanAutoremove())

	// With one, it is met with a manual cause carrying the assignment's
	// audit fields.
	assignedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assigns := &fakeAssignments{byUser: map[string][]account.ManualAssignment{
		"100": {{UserID: "100", Badge: "Veteran", AssignedBy: "300", AssignedAt: assignedAt}},
	}}
	a = newAnalyzer(def, &fakeSrcom{}, &fakeCM{}, conns, assigns)
	user, err = a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	require.True(t, user.Badge("Veteran").Met())
	cause, ok := user.Badge("Veteran").MetRequirements[0].Cause.(analysis.ManualCause)
	require.True(t, ok)
	assert.Equal(t, "300", cause.AssignedBy)
	assert.Equal(t, assignedAt, cause.AssignedAt)
}

func TestAnalyzeUser_RecentBoundary(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Active",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRecent, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Months: 6,
		}},
	}}}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
	}}
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	analyze := func(date string) bool {
		sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{
			placedRun(1, "r1", date, "U"),
		}})}
		a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
		a.now = func() time.Time { return now }

		user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
		require.NoError(t, err)
		return user.Badge("Active").Met()
	}

	// A day inside the window is recent, a day outside is not, and a run
	// with neither a date nor a submission timestamp never is.
	assert.True(t, analyze("2026-02-16"))
	assert.False(t, analyze("2026-02-14"))
	assert.False(t, analyze(""))
}

func TestAnalyzeUser_RecentSubmittedFallback(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Active",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRecent, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Months: 6,
		}},
	}}}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
	}}
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	analyze := func(submitted string) bool {
		run := placedRun(1, "r1", "", "U")
		run.Run.Submitted = submitted
		sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{run}})}
		a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
		a.now = func() time.Time { return now }

		user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
		require.NoError(t, err)
		return user.Badge("Active").Met()
	}

	// An undated run falls back to its submission timestamp.
	assert.True(t, analyze("2026-08-01T12:00:00Z"))
	assert.False(t, analyze("2025-12-01T12:00:00Z"))
}

func TestAnalyzeUser_RecentCM(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "CMActive",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRecent, Platform: definition.PlatformCM, Months: 3,
		}},
	}}}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {steamConn("100", "7656119800000001")},
		"200": {steamConn("200", "7656119800000002")},
	}}
	cmb := &fakeCM{active: map[uint64]bool{7656119800000001: true}}

	a := newAnalyzer(def, &fakeSrcom{}, cmb, conns, nil)

	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.True(t, user.Badge("CMActive").Met())

	user, err = a.AnalyzeUser(context.Background(), "200", "beta")
	require.NoError(t, err)
	assert.False(t, user.Badge("CMActive").Met())
}

func TestAnalyzeUser_SecondAccountSatisfies(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Top10",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRank, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Top: 10,
		}},
	}}}

	// The first linked account has no run at all; the second places 4.
	sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{
		placedRun(4, "r4", "2026-05-01", "U2"),
	}})}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U1"), srcomConn("100", "U2")},
	}}

	a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	require.True(t, user.Badge("Top10").Met())
	assert.Equal(t, "r4", user.Badge("Top10").MetRequirements[0].Cause.(analysis.FullgameRunCause).RunID)
}

func TestAnalyzeAll(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Top10",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRank, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Top: 10,
		}},
	}}}

	sr := &fakeSrcom{board: srcom.NewBoard(&srcom.Leaderboard{Runs: []srcom.PlacedRun{
		placedRun(7, "r7", "2026-05-01", "U"),
	}})}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
		"200": {srcomConn("200", "other")},
	}}

	a := newAnalyzer(def, sr, &fakeCM{}, conns, nil)
	report, err := a.AnalyzeAll(context.Background(), func(userID string) string { return "user-" + userID })
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalUsers)
	assert.Equal(t, 1, report.UsersWithBadges)
	assert.Equal(t, 1, report.BadgeCounts["Top10"])
	assert.Equal(t, 2, report.UsersByPlatform[definition.PlatformSrcom])
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestAnalyzeAll_AbortsOnProviderError(t *testing.T) {
	def := &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
		Name: "Top10",
		Requirements: []definition.RequirementDefinition{{
			Type: definition.RequirementRank, Platform: definition.PlatformSrcom,
			Game: "G", Category: "C", Top: 10,
		}},
	}}}

	boom := errors.New("provider down")
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U")},
	}}

	a := newAnalyzer(def, &fakeSrcom{err: boom}, &fakeCM{}, conns, nil)
	_, err := a.AnalyzeAll(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSetDefinition(t *testing.T) {
	manualOnly := func(name string) *definition.RoleDefinition {
		return &definition.RoleDefinition{Badges: []definition.BadgeDefinition{{
			Name:         name,
			Requirements: []definition.RequirementDefinition{{Type: definition.RequirementManual}},
		}}}
	}

	a := newAnalyzer(manualOnly("Old"), &fakeSrcom{}, &fakeCM{}, nil, nil)
	assert.Equal(t, "Old", a.Definition().Badges[0].Name)

	a.SetDefinition(manualOnly("New"))
	assert.Equal(t, "New", a.Definition().Badges[0].Name)

	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)
	assert.NotNil(t, user.Badge("New"))
	assert.Nil(t, user.Badge("Old"))

	// An explicit definition wins over the active one.
	user, err = a.AnalyzeUserWith(context.Background(), manualOnly("AdHoc"), "100", "alpha")
	require.NoError(t, err)
	assert.NotNil(t, user.Badge("AdHoc"))
}

func TestAnalyzeUser_AccountLinks(t *testing.T) {
	def := &definition.RoleDefinition{}
	conns := &fakeConnections{byUser: map[string][]account.VerifiedConnection{
		"100": {srcomConn("100", "U"), steamConn("100", "7656119800000001")},
	}}

	a := newAnalyzer(def, &fakeSrcom{}, &fakeCM{}, conns, nil)
	user, err := a.AnalyzeUser(context.Background(), "100", "alpha")
	require.NoError(t, err)

	require.Len(t, user.Accounts, 2)
	assert.Equal(t, "runner-U", user.Accounts[0].Name)
	assert.Equal(t, "https://www.speedrun.com/user/runner-U", user.Accounts[0].Weblink)
	assert.Equal(t, "player", user.Accounts[1].Name)
}
