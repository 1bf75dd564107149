// Package cm is the board.portal2.sr challenge-mode provider. It serves
// aggregate point boards, recent-activity profile lists and player profiles
// from TTL caches in front of the public JSON API.
package cm

import (
	"strconv"

	"github.com/p2community/badge-hub/internal/domain/shared"
)

// ProfileUserData is the display metadata the provider attaches to a player.
type ProfileUserData struct {
	Boardname string `json:"boardname"`
	Avatar    string `json:"avatar"`
}

// Profile is one player profile.
type Profile struct {
	ProfileNumber string          `json:"profileNumber"`
	UserData      ProfileUserData `json:"userData"`
}

// ScoreData is one player's standing on an aggregate board.
type ScoreData struct {
	Score      uint64 `json:"score"`
	PlayerRank uint64 `json:"playerRank"`
	ScoreRank  uint64 `json:"scoreRank"`
}

// AggregateEntry is one player's row on an aggregate board.
type AggregateEntry struct {
	UserData  ProfileUserData `json:"userData"`
	ScoreData ScoreData       `json:"scoreData"`
}

// Aggregate is one aggregate point board, keyed by steam id.
type Aggregate struct {
	Points map[string]AggregateEntry `json:"Points"`
}

// Entry looks up a player's row by steam id.
func (a *Aggregate) Entry(steamID uint64) (AggregateEntry, bool) {
	e, ok := a.Points[strconv.FormatUint(steamID, 10)]
	return e, ok
}

// activeProfilesResponse is the active-profiles endpoint payload.
type activeProfilesResponse struct {
	Profiles []struct {
		ProfileNumber uint64 `json:"profile_number"`
	} `json:"profiles"`
}

// ParseProfileID parses a stored steam id. Connection rows come from an
// external writer, so a non-numeric id is a data integrity problem rather
// than user error.
func ParseProfileID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, shared.WrapError("cm", "ParseProfileID", shared.ErrDataIntegrity,
			"stored profile id "+strconv.Quote(s)+" is not numeric", err)
	}
	return id, nil
}
