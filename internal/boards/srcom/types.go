// Package srcom is the speedrun.com leaderboard provider. It fetches
// full-game leaderboards through the public REST API, caches them, and
// answers best-run queries against the cached snapshots.
package srcom

import (
	"encoding/json"
	"time"
)

// envelope is the `{"data": ...}` wrapper every API response uses.
type envelope[T any] struct {
	Data T `json:"data"`
}

// Game is a speedrun.com game resource.
type Game struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Weblink      string `json:"weblink"`
	Names        struct {
		International string `json:"international"`
	} `json:"names"`
}

// Name returns the game's international display name.
func (g *Game) Name() string { return g.Names.International }

// Category is a speedrun.com category resource.
type Category struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Weblink string `json:"weblink"`
}

// User is a speedrun.com user resource.
type User struct {
	ID      string `json:"id"`
	Weblink string `json:"weblink"`
	Names   struct {
		International string `json:"international"`
	} `json:"names"`
}

// Name returns the user's international display name.
func (u *User) Name() string { return u.Names.International }

// Variable is a speedrun.com variable resource with its value choices.
type Variable struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Values struct {
		Values map[string]struct {
			Label string `json:"label"`
		} `json:"values"`
	} `json:"values"`
}

// ChoiceLabel returns the display label of one value choice.
func (v *Variable) ChoiceLabel(choice string) (string, bool) {
	val, ok := v.Values.Values[choice]
	return val.Label, ok
}

// RunPlayer is one participant of a run. Registered users carry Rel "user"
// and an id; guests carry Rel "guest" and only a name.
type RunPlayer struct {
	Rel  string `json:"rel"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsUser reports whether the player is a registered user.
func (p *RunPlayer) IsUser() bool { return p.Rel == "user" }

// Run is one submitted run.
type Run struct {
	ID      string `json:"id"`
	Weblink string `json:"weblink"`

	// Date is the self-reported run date in YYYY-MM-DD, empty when the
	// submitter left it out.
	Date string `json:"date"`

	// Submitted is the RFC 3339 submission timestamp. Empty on runs that
	// predate submission tracking.
	Submitted string `json:"submitted"`

	Status struct {
		Status string `json:"status"`
	} `json:"status"`

	Players []RunPlayer `json:"players"`

	Times struct {
		PrimaryT float64 `json:"primary_t"`
	} `json:"times"`
}

// IsVerified reports whether moderators accepted the run.
func (r *Run) IsVerified() bool { return r.Status.Status == "verified" }

// HasPlayer reports whether the given registered user participated.
func (r *Run) HasPlayer(userID string) bool {
	for i := range r.Players {
		if r.Players[i].IsUser() && r.Players[i].ID == userID {
			return true
		}
	}
	return false
}

// PrimaryDuration returns the run's primary time.
func (r *Run) PrimaryDuration() time.Duration {
	return time.Duration(r.Times.PrimaryT * float64(time.Second))
}

// ParsedDate returns the run's date, preferring the self-reported date and
// falling back to the submission timestamp. False when the run carries
// neither, or both are malformed.
func (r *Run) ParsedDate() (time.Time, bool) {
	if r.Date != "" {
		if t, err := time.Parse("2006-01-02", r.Date); err == nil {
			return t, true
		}
	}
	if r.Submitted != "" {
		if t, err := time.Parse(time.RFC3339, r.Submitted); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PlacedRun is a run together with its leaderboard place.
type PlacedRun struct {
	Place uint64 `json:"place"`
	Run   Run    `json:"run"`
}

// embeddedRef decodes a field that is a bare id string without embeds and a
// `{"data": resource}` object with them.
type embeddedRef[T any] struct {
	Resource *T
	ID       string
}

func (e *embeddedRef[T]) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	e.Resource = &env.Data
	return nil
}

// Leaderboard is one filtered category leaderboard, fetched with game,
// category, players and variables embedded.
type Leaderboard struct {
	Weblink  string               `json:"weblink"`
	Game     embeddedRef[Game]     `json:"game"`
	Category embeddedRef[Category] `json:"category"`
	Players  struct {
		Data []User `json:"data"`
	} `json:"players"`
	Variables struct {
		Data []Variable `json:"data"`
	} `json:"variables"`
	Runs []PlacedRun `json:"runs"`
}
