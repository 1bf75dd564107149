package srcom

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/p2community/badge-hub/internal/boards/cache"
	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// StateConfig holds cache settings for the srcom state.
type StateConfig struct {
	// LeaderboardTTL bounds how stale a cached leaderboard may be.
	LeaderboardTTL time.Duration

	// ResourceTTL applies to games, categories, users and variables, which
	// change far more rarely than leaderboards.
	ResourceTTL time.Duration
}

// DefaultStateConfig returns the production cache settings.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		LeaderboardTTL: 15 * time.Minute,
		ResourceTTL:    24 * time.Hour,
	}
}

// Board is one cached leaderboard snapshot together with its memoized
// best-run resolver. The memo lives and dies with the snapshot.
type Board struct {
	Leaderboard *Leaderboard
	resolver    *runResolver
}

// NewBoard wraps a leaderboard snapshot with a fresh resolver.
func NewBoard(lb *Leaderboard) *Board {
	return &Board{Leaderboard: lb, resolver: newRunResolver(lb)}
}

// HighestRun returns the user's best verified run on this board under the
// given partner restriction.
func (b *Board) HighestRun(userID string, restriction definition.PartnerRestriction) (*PlacedRun, bool) {
	return b.resolver.highestRun(userID, restriction)
}

// State owns the speedrun.com caches. Leaderboard fetches warm the resource
// caches from the embedded game, category, player and variable data, so
// formatting a requirement over a fetched board costs no extra requests.
type State struct {
	client *Client
	logger *slog.Logger

	leaderboards *cache.Cache[string, *Board]
	games        *cache.Cache[string, *Game]
	categories   *cache.Cache[string, *Category]
	users        *cache.Cache[string, *User]
	variables    *cache.Cache[string, *Variable]
}

// NewState creates srcom state backed by the given client.
func NewState(client *Client, cfg StateConfig, logger *slog.Logger) *State {
	return &State{
		client:       client,
		logger:       logger.With(slog.String("component", "srcom_state")),
		leaderboards: cache.New[string, *Board](cfg.LeaderboardTTL),
		games:        cache.New[string, *Game](cfg.ResourceTTL),
		categories:   cache.New[string, *Category](cfg.ResourceTTL),
		users:        cache.New[string, *User](cfg.ResourceTTL),
		variables:    cache.New[string, *Variable](cfg.ResourceTTL),
	}
}

// boardKey canonicalizes a board identity: game, category and the variable
// selection sorted by variable id. Requirements differing only in threshold
// share the same board.
func boardKey(game, category string, variables map[string]string) string {
	var b strings.Builder
	b.WriteString(game)
	b.WriteByte('/')
	b.WriteString(category)

	if len(variables) > 0 {
		keys := make([]string, 0, len(variables))
		for k := range variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('?')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(variables[k])
		}
	}

	return b.String()
}

// Board returns the cached leaderboard for the requirement's board,
// fetching it when stale.
func (s *State) Board(ctx context.Context, req *definition.RequirementDefinition) (*Board, error) {
	variables := req.VariableMap()
	key := boardKey(req.Game, req.Category, variables)

	return s.leaderboards.GetOrFetch(ctx, key, func(ctx context.Context) (*Board, error) {
		lb, err := s.client.Leaderboard(ctx, req.Game, req.Category, variables)
		if err != nil {
			return nil, err
		}
		s.warm(lb)
		s.logger.Debug("leaderboard fetched",
			slog.String("board", key),
			slog.Int("runs", len(lb.Runs)))
		return NewBoard(lb), nil
	})
}

// warm populates the resource caches from a leaderboard's embedded data.
func (s *State) warm(lb *Leaderboard) {
	if g := lb.Game.Resource; g != nil {
		s.games.Put(g.ID, g)
	}
	if c := lb.Category.Resource; c != nil {
		s.categories.Put(c.ID, c)
	}
	for i := range lb.Players.Data {
		u := &lb.Players.Data[i]
		s.users.Put(u.ID, u)
	}
	for i := range lb.Variables.Data {
		v := &lb.Variables.Data[i]
		s.variables.Put(v.ID, v)
	}
}

// GameName implements definition.NameSource.
func (s *State) GameName(ctx context.Context, id string) (string, error) {
	g, err := s.games.GetOrFetch(ctx, id, func(ctx context.Context) (*Game, error) {
		return s.client.Game(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return g.Name(), nil
}

// CategoryName implements definition.NameSource.
func (s *State) CategoryName(ctx context.Context, id string) (string, error) {
	c, err := s.categories.GetOrFetch(ctx, id, func(ctx context.Context) (*Category, error) {
		return s.client.Category(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

// VariableChoiceLabel implements definition.NameSource.
func (s *State) VariableChoiceLabel(ctx context.Context, variable, choice string) (string, error) {
	v, err := s.variables.GetOrFetch(ctx, variable, func(ctx context.Context) (*Variable, error) {
		return s.client.Variable(ctx, variable)
	})
	if err != nil {
		return "", err
	}

	label, ok := v.ChoiceLabel(choice)
	if !ok {
		return "", shared.NewDomainError("srcom", "VariableChoiceLabel", shared.ErrNotFound,
			"variable "+variable+" has no choice "+choice)
	}
	return label, nil
}

// UserProfile returns a speedrun.com user resource.
func (s *State) UserProfile(ctx context.Context, id string) (*User, error) {
	return s.users.GetOrFetch(ctx, id, func(ctx context.Context) (*User, error) {
		return s.client.User(ctx, id)
	})
}

// UserName returns the display name of a speedrun.com user.
func (s *State) UserName(ctx context.Context, id string) (string, error) {
	u, err := s.UserProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name(), nil
}
