package srcom

import (
	"sync"

	"github.com/p2community/badge-hub/internal/domain/definition"
)

// resolveKey identifies one memoized best-run query.
type resolveKey struct {
	user        string
	restriction definition.PartnerRestriction
}

// runResolver answers best-run queries against one leaderboard snapshot.
// Results are memoized for the snapshot's lifetime: the snapshot is
// immutable, so a resolved answer never changes. The memo also stores
// negative answers.
type runResolver struct {
	mu    sync.Mutex
	board *Leaderboard
	memo  map[resolveKey]*PlacedRun

	// scans counts full leaderboard passes, for observability in tests.
	scans int
}

func newRunResolver(board *Leaderboard) *runResolver {
	return &runResolver{
		board: board,
		memo:  make(map[resolveKey]*PlacedRun),
	}
}

// highestRun returns the user's best verified run under the given partner
// restriction, or false when the user has none.
func (r *runResolver) highestRun(userID string, restriction definition.PartnerRestriction) (*PlacedRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.resolve(userID, restriction)
	return run, run != nil
}

// resolve holds the invariant that restricted queries only recurse into
// unrestricted ones, so the recursion cannot cycle. Caller holds r.mu.
func (r *runResolver) resolve(userID string, restriction definition.PartnerRestriction) *PlacedRun {
	key := resolveKey{user: userID, restriction: restriction}
	if run, ok := r.memo[key]; ok {
		return run
	}
	r.scans++

	var best *PlacedRun
	for i := range r.board.Runs {
		pr := &r.board.Runs[i]
		if !pr.Run.IsVerified() || !pr.Run.HasPlayer(userID) {
			continue
		}
		if restriction == definition.PartnerRankGte && !r.partnersRankAtLeast(userID, pr) {
			continue
		}
		// Strict < keeps the first-seen run among ties.
		if best == nil || pr.Place < best.Place {
			best = pr
		}
	}

	r.memo[key] = best
	return best
}

// partnersRankAtLeast reports whether every registered co-player of the run
// ranks at least as well through this run as through any other run of
// theirs. A partner whose own unrestricted best places strictly better than
// the shared run disqualifies it.
func (r *runResolver) partnersRankAtLeast(userID string, pr *PlacedRun) bool {
	for i := range pr.Run.Players {
		p := &pr.Run.Players[i]
		if !p.IsUser() || p.ID == userID {
			continue
		}
		partnerBest := r.resolve(p.ID, "")
		if partnerBest != nil && partnerBest.Place < pr.Place {
			return false
		}
	}
	return true
}
