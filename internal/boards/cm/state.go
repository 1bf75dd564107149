package cm

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/p2community/badge-hub/internal/boards/cache"
	"github.com/p2community/badge-hub/internal/domain/definition"
	"github.com/p2community/badge-hub/internal/domain/shared"
)

// StateConfig holds cache settings for the challenge-mode state.
type StateConfig struct {
	AggregateTTL      time.Duration
	ActiveProfilesTTL time.Duration
	ProfileTTL        time.Duration
}

// DefaultStateConfig returns the production cache settings. Aggregates also
// get refreshed by the background job, so request-driven expiry is a
// fallback for the first access after startup.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		AggregateTTL:      15 * time.Minute,
		ActiveProfilesTTL: time.Hour,
		ProfileTTL:        24 * time.Hour,
	}
}

// State owns the challenge-mode caches. Aggregate fetches warm the profile
// cache from the embedded user data, mirroring how leaderboard fetches warm
// the speedrun.com resource caches.
type State struct {
	client *Client
	logger *slog.Logger

	aggregates     *cache.Cache[definition.CMLeaderboard, *Aggregate]
	activeProfiles *cache.Cache[uint64, map[uint64]bool]
	profiles       *cache.Cache[uint64, *Profile]
}

// NewState creates challenge-mode state backed by the given client.
func NewState(client *Client, cfg StateConfig, logger *slog.Logger) *State {
	return &State{
		client:         client,
		logger:         logger.With(slog.String("component", "cm_state")),
		aggregates:     cache.New[definition.CMLeaderboard, *Aggregate](cfg.AggregateTTL),
		activeProfiles: cache.New[uint64, map[uint64]bool](cfg.ActiveProfilesTTL),
		profiles:       cache.New[uint64, *Profile](cfg.ProfileTTL),
	}
}

// Aggregate returns the cached aggregate board, fetching it when stale.
func (s *State) Aggregate(ctx context.Context, board definition.CMLeaderboard) (*Aggregate, error) {
	return s.aggregates.GetOrFetch(ctx, board, func(ctx context.Context) (*Aggregate, error) {
		return s.fetchAggregate(ctx, board)
	})
}

func (s *State) fetchAggregate(ctx context.Context, board definition.CMLeaderboard) (*Aggregate, error) {
	agg, err := s.client.Aggregate(ctx, board)
	if err != nil {
		return nil, err
	}

	// Warm the profile cache from the rows. A key that fails to parse
	// poisons the whole board: every id in the payload is supposed to be a
	// steam id.
	for key, entry := range agg.Points {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, shared.WrapError("cm", "Aggregate", shared.ErrDataIntegrity,
				"aggregate row key "+strconv.Quote(key)+" is not a steam id", err)
		}
		s.profiles.Put(id, &Profile{ProfileNumber: key, UserData: entry.UserData})
	}

	s.logger.Debug("aggregate fetched",
		slog.String("board", string(board)),
		slog.Int("rows", len(agg.Points)))
	return agg, nil
}

// Score returns the player's score entry on the named board.
func (s *State) Score(ctx context.Context, board definition.CMLeaderboard, steamID uint64) (ScoreData, bool, error) {
	agg, err := s.Aggregate(ctx, board)
	if err != nil {
		return ScoreData{}, false, err
	}
	entry, ok := agg.Entry(steamID)
	return entry.ScoreData, ok, nil
}

// IsActive reports whether the player shows up in the provider's list of
// profiles active within the trailing months.
func (s *State) IsActive(ctx context.Context, months uint64, steamID uint64) (bool, error) {
	active, err := s.activeProfiles.GetOrFetch(ctx, months, func(ctx context.Context) (map[uint64]bool, error) {
		ids, err := s.client.ActiveProfiles(ctx, months)
		if err != nil {
			return nil, err
		}
		set := make(map[uint64]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		return set, nil
	})
	if err != nil {
		return false, err
	}
	return active[steamID], nil
}

// Profile returns the player's profile, fetching it when not already warmed
// by an aggregate fetch.
func (s *State) Profile(ctx context.Context, steamID uint64) (*Profile, error) {
	return s.profiles.GetOrFetch(ctx, steamID, func(ctx context.Context) (*Profile, error) {
		return s.client.Profile(ctx, steamID)
	})
}

// RefreshAggregates force-fetches every aggregate board, replacing whatever
// the caches hold. The background refresh job calls this on its interval so
// the boards stay warm between analyses.
func (s *State) RefreshAggregates(ctx context.Context) error {
	boards := []definition.CMLeaderboard{definition.CMOverall, definition.CMSinglePlayer, definition.CMCoop}
	for _, board := range boards {
		agg, err := s.fetchAggregate(ctx, board)
		if err != nil {
			return err
		}
		s.aggregates.Put(board, agg)
	}
	return nil
}
