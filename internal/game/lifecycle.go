package game

import (
	"math/rand"
	"sort"
)

// MatchState is the top-level phase machine of spec.md §4.6.
type MatchState int

const (
	PhaseLobby MatchState = iota
	PhaseActive
	PhaseIntermission
	PhaseMapReload
)

// Vote is one non-spectator's map/mode choice.
type Vote struct {
	CN     int
	MapName string
	Mode    string
}

// VoteTally counts votes and resolves ties by coin toss, per spec.md §4.6.
type VoteTally struct {
	votes map[int]Vote
}

// NewVoteTally creates an empty tally.
func NewVoteTally() *VoteTally { return &VoteTally{votes: make(map[int]Vote)} }

// Cast records or replaces cn's vote.
func (t *VoteTally) Cast(cn int, v Vote) { t.votes[cn] = v }

// Clear empties the tally (called on map change).
func (t *VoteTally) Clear() { t.votes = make(map[int]Vote) }

type voteCount struct {
	choice Vote
	n      int
}

// Winner returns the current leading (mapname,mode) choice, the vote count
// backing it, and the total number of non-spectator votes cast. Ties are
// broken with rng.
func (t *VoteTally) Winner(rng *rand.Rand) (Vote, int, int) {
	counts := make(map[string]*voteCount)
	order := make([]string, 0, len(t.votes))
	for _, v := range t.votes {
		key := v.MapName + "\x00" + v.Mode
		if c, ok := counts[key]; ok {
			c.n++
		} else {
			counts[key] = &voteCount{choice: v, n: 1}
			order = append(order, key)
		}
	}
	if len(order) == 0 {
		return Vote{}, 0, 0
	}
	best := counts[order[0]]
	ties := []*voteCount{best}
	for _, k := range order[1:] {
		c := counts[k]
		switch {
		case c.n > best.n:
			best = c
			ties = []*voteCount{c}
		case c.n == best.n:
			ties = append(ties, c)
		}
	}
	if len(ties) > 1 {
		best = ties[rng.Intn(len(ties))]
	}
	return best.choice, best.n, len(t.votes)
}

// HasMajority reports whether the winning choice has strictly more than
// half of maxVoters (e.g. connected non-spectator count), per spec.md §4.6.
func HasMajority(winnerCount, maxVoters int) bool {
	return maxVoters > 0 && winnerCount > maxVoters/2
}

// Intermission schedules the post-vote transition, per spec.md §4.6.
type Intermission struct {
	Active bool
	EndsAt int64
}

// Begin sets interm = now + 10000ms, as spec.md §4.6 specifies, called when
// minremain reaches 0.
func (im *Intermission) Begin(nowGameMillis int64) {
	im.Active = true
	im.EndsAt = nowGameMillis + 10_000
}

// Due reports whether the scheduled transition should fire now.
func (im *Intermission) Due(nowGameMillis int64) bool {
	return im.Active && nowGameMillis > im.EndsAt
}

// End clears the intermission state.
func (im *Intermission) End() { im.Active = false }

// GameLimitMillis computes spec.md §4.6's gamelimit seed: minremain*60000,
// 10 minutes normal, 15 overtime.
func GameLimitMillis(overtime bool) int64 {
	if overtime {
		return 15 * 60 * 1000
	}
	return 10 * 60 * 1000
}

// Rankable is the subset of Client state autoteam needs, exported so callers
// outside this package (the map-change sequence) can build the slice Autoteam
// balances over.
type Rankable struct {
	CN             int
	Effectiveness  float64
	TimePlayed     int64
	HideFrags      bool
}

// AssignTeam returns which of the two teams a player should join under
// autoteam, per spec.md §4.6: iteratively pick the highest-rank unassigned
// player, assign to the lower-ranked team. good/evil track running totals
// across successive calls for one balancing pass.
func AssignTeam(good, evil *teamAccumulator, r Rankable) Team {
	rank := playerRank(r)
	if good.rank <= evil.rank {
		good.rank += rank
		good.count++
		return TeamGood
	}
	evil.rank += rank
	evil.count++
	return TeamEvil
}

// playerRank computes the autoteam balancing weight spec.md §4.6 describes:
// effectiveness per millisecond played, or a flat 1 for bots/hidden-frag clients
// and anyone with no playtime yet.
func playerRank(r Rankable) float64 {
	if r.HideFrags || r.TimePlayed <= 0 {
		return 1.0
	}
	return r.Effectiveness / maxF(float64(r.TimePlayed), 1)
}

// teamAccumulator tracks one team's running rank total during autoteam.
type teamAccumulator struct {
	rank  float64
	count int
}

// Team identifiers for the two-team modes.
const (
	TeamGood Team = 1
	TeamEvil Team = 2
)

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Autoteam assigns every player in players to the currently-lighter team,
// processing highest-rank-first so the strongest players get spread across
// teams first, per spec.md §4.6.
func Autoteam(players []Rankable) map[int]Team {
	ranked := make([]Rankable, len(players))
	copy(ranked, players)
	sort.Slice(ranked, func(i, j int) bool {
		return playerRank(ranked[i]) > playerRank(ranked[j])
	})

	good, evil := &teamAccumulator{}, &teamAccumulator{}
	out := make(map[int]Team, len(ranked))
	for _, p := range ranked {
		out[p.CN] = AssignTeam(good, evil, p)
	}
	return out
}
